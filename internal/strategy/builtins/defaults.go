package builtins

import "meridian/internal/strategy"

// RegisterDefaults adds every builtin strategy to the registry with its
// standard parameters.
func RegisterDefaults(r *strategy.Registry) {
	r.Register(NewSMACross(20, 50))
	r.Register(NewEMACross(12, 26))
	r.Register(NewRSI(14, 30, 70))
	r.Register(NewMACD(12, 26, 9))
	r.Register(NewBollinger(20, 2.0))
	r.Register(NewSupportResistance(50, 0.01))
}
