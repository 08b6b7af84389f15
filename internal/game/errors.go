package game

import "errors"

var (
	ErrGameNotFound       = errors.New("game not found")
	ErrGameExists         = errors.New("game already exists")
	ErrGameTerminated     = errors.New("game terminated")
	ErrNotAttackingPlayer = errors.New("not the attacking player")
	ErrCreatureNotFound   = errors.New("creature not found")
	ErrCannotAttack       = errors.New("creature cannot attack")
	ErrCannotBlock        = errors.New("creature cannot block")
	ErrInvalidDefender    = errors.New("invalid defender")
	ErrNoCombat           = errors.New("no combat in progress")
)
