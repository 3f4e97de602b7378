package driver

import (
	"github.com/proofrun/proofrun/internal/actions"
	"github.com/proofrun/proofrun/internal/collab"
	"github.com/proofrun/proofrun/internal/plan"
)

// RegisterAll installs a sidecar-backed runner for every concrete scenario.
func (c *Client) RegisterAll(reg *actions.Registry) error {
	for _, action := range plan.ConcreteActions() {
		action := action
		if err := reg.Register(action, func() (collab.ActionRunner, error) {
			return c.Runner(action), nil
		}); err != nil {
			return err
		}
	}
	return nil
}
