package gamedata

import "github.com/rotisserie/eris"

var (
	ErrEntityNotFound     = eris.New("entity not found")
	ErrDuplicateID        = eris.New("entity id already in use")
	ErrInvalidID          = eris.New("entity ids must not be negative")
	ErrSelfContainment    = eris.New("entity cannot contain itself")
	ErrCrossStore         = eris.New("entities belong to different stores")
	ErrTypeMismatch       = eris.New("attribute value has a different shape")
	ErrAttributeNotFound  = eris.New("attribute not found")
	ErrBlockNotFound      = eris.New("attribute block not found")
	ErrBlockExists        = eris.New("attribute block already exists")
	ErrNotTracking        = eris.New("store is not tracking changes")
	ErrShadowActive       = eris.New("entity has uncommitted changes")
	ErrPendingResolution  = eris.New("entity containment is not resolved yet")
	ErrPendingChanges     = eris.New("store has pending changes")
	ErrStaleChange        = eris.New("change was recorded against a different entity version")
	ErrUnknownChangeKind  = eris.New("unknown change kind")
	ErrUnresolvedEntityID = eris.New("contained entity id does not exist")
)
