package config

import (
	"github.com/hashicorp/go-bexpr"
)

// providerSubject is evaluated against Options.ProviderACL.
type providerSubject struct {
	Name string `bexpr:"name"`
}

// AllowProvide reports whether name is allowed to be registered via
// rpc.Provide, per the optional ProviderACL expression (spec.md §4.7
// [DOMAIN]). An empty ProviderACL allows everything, matching the
// unconditional behavior spec.md itself describes.
func AllowProvide(acl string, name string) (bool, error) {
	if acl == "" {
		return true, nil
	}
	eval, err := bexpr.CreateEvaluator(acl)
	if err != nil {
		return false, err
	}
	return eval.Evaluate(providerSubject{Name: name})
}
