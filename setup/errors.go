package setup

import "github.com/rotisserie/eris"

var (
	ErrPoolNotFound   = eris.New("pool not found")
	ErrPoolExists     = eris.New("pool already exists")
	ErrUnknownCommand = eris.New("unknown setup command")
	ErrInvalidParam   = eris.New("invalid setup command parameter")
	ErrSetupNotFound  = eris.New("setup not found")
)
