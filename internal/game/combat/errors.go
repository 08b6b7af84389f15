package combat

import "errors"

// Declaration errors. Damage assignment never fails; a creature that is gone
// has simply left combat.
var (
	ErrUnknownDefender  = errors.New("unknown defender")
	ErrNotCreature      = errors.New("not a creature on the battlefield")
	ErrAlreadyAttacking = errors.New("creature is already attacking")
	ErrNotAttacking     = errors.New("creature is not attacking")
	ErrCannotBlock      = errors.New("creature cannot block that attacker")
	ErrAlreadyBlocking  = errors.New("creature is already blocking that attacker")
	ErrBlockCapacity    = errors.New("creature cannot block any more attackers")
	ErrBlockCanceled    = errors.New("block was canceled by an effect")
)
