package domain

import "fmt"

// LineExtensionViolations checks the NME / line-extension rules of p.
// parent is the loaded parent product, nil when unknown. hasParent reports
// whether a parent reference exists even if it could not be loaded yet.
func (p *Product) LineExtensionViolations(parent *Product, hasParent bool) []string {
	var out []string
	if p.IsNME && p.IsLineExtension {
		out = append(out, "a product cannot be both an NME and a line extension")
	}
	if p.IsLineExtension && !hasParent {
		out = append(out, "a line extension requires a parent product")
	}
	if p.ParentProductID != nil && p.ProductID != 0 && *p.ParentProductID == p.ProductID {
		out = append(out, "a product cannot be its own parent")
	}
	if parent != nil && !parent.IsNME {
		out = append(out, fmt.Sprintf("parent product %s is not an NME", parent.ProductCode))
	}
	if p.LaunchSequence != nil && *p.LaunchSequence < 1 {
		out = append(out, "launch sequence must be a positive integer")
	}
	return out
}
