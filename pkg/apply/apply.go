package apply

import (
	"github.com/nickout/ettlex/pkg/kernel"
	"github.com/nickout/ettlex/pkg/status"
)

// Result carries the outcome of a successful apply. CreatedID is set for
// creating commands only.
type Result struct {
	State     *kernel.Store
	CreatedID string

	_ struct{}
}

// Apply runs one command against a state under an anchor policy and returns
// the resulting state. The input state is never mutated: the command runs
// against a deep clone, the clone is re-validated, and only a fully valid
// clone is handed back. On any error the caller keeps its original state
// untouched.
//
// A nil policy means NeverAnchored.
func Apply(state *kernel.Store, cmd Command, policy AnchorPolicy) (Result, error) {
	if state == nil {
		return Result{}, status.ErrInvalidInput.WrapMessage("nil state")
	}
	if policy == nil {
		policy = NeverAnchored{}
	}

	next := state.Clone()
	createdID, err := dispatch(next, cmd, policy)
	if err != nil {
		return Result{}, err
	}
	if err := next.ValidateTree(); err != nil {
		return Result{}, status.ErrInternal.Wrap(err)
	}
	return Result{State: next, CreatedID: createdID}, nil
}

func dispatch(s *kernel.Store, cmd Command, policy AnchorPolicy) (string, error) {
	switch c := cmd.(type) {
	case EttleCreate:
		return s.CreateEttle(c.Title, c.Metadata)
	case EttleUpdate:
		return "", s.UpdateEttle(c.ID, c.Update)
	case EttleDelete:
		return "", s.DeleteEttle(c.ID)
	case PartitionCreate:
		return s.CreatePartition(c.EttleID, c.In)
	case PartitionUpdate:
		return "", s.UpdatePartition(c.ID, c.Update)
	case PartitionDelete:
		if policy.IsAnchoredPartition(c.ID) {
			return "", s.DeletePartition(c.ID)
		}
		return "", s.HardDeletePartition(c.ID)
	case LinkChild:
		return "", s.LinkChild(c.PartitionID, c.ChildID)
	case UnlinkChild:
		return "", s.UnlinkChild(c.PartitionID)
	case nil:
		return "", status.ErrInvalidInput.WrapMessage("nil command")
	default:
		return "", status.ErrInvalidInput.WrapMessage("unknown command type %T", cmd)
	}
}
