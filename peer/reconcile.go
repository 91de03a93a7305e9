package peer

import (
	"github.com/rotisserie/eris"

	"github.com/argus-labs/tabletop/gamedata"
)

// Reconcile makes the committed state of local equal to that of remote and returns the changes it applied.
// Pending changes of local are kept on top.
func Reconcile(local, remote *gamedata.Store) ([]gamedata.Change, error) {
	changes := gamedata.BuildChanges(local, remote)
	if len(changes) == 0 {
		return nil, nil
	}
	if err := local.ApplyRemote(changes); err != nil {
		return nil, eris.Wrap(err, "failed to apply reconciliation changes")
	}
	return changes, nil
}
