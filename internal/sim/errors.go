package sim

import "errors"

// ErrStateDiverged indicates a realized state containing NaN or Inf.
var ErrStateDiverged = errors.New("state diverged (NaN or Inf)")
