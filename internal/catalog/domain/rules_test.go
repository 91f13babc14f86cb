package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineExtensionViolations(t *testing.T) {
	parentID := int64(1)
	nme := &Product{ProductID: 1, ProductCode: "P-1", IsNME: true}
	notNME := &Product{ProductID: 1, ProductCode: "P-1"}

	tests := []struct {
		name    string
		product Product
		parent  *Product
		has     bool
		want    int
	}{
		{name: "plain nme", product: Product{ProductID: 2, IsNME: true}, want: 0},
		{name: "both flags", product: Product{ProductID: 2, IsNME: true, IsLineExtension: true, ParentProductID: &parentID}, parent: nme, has: true, want: 1},
		{name: "missing parent", product: Product{ProductID: 2, IsLineExtension: true}, want: 1},
		{name: "parent not nme", product: Product{ProductID: 2, IsLineExtension: true, ParentProductID: &parentID}, parent: notNME, has: true, want: 1},
		{name: "valid extension", product: Product{ProductID: 2, IsLineExtension: true, ParentProductID: &parentID}, parent: nme, has: true, want: 0},
		{name: "self parent", product: Product{ProductID: 1, IsLineExtension: true, ParentProductID: &parentID}, has: true, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.product.LineExtensionViolations(tt.parent, tt.has)
			assert.Len(t, got, tt.want, "%v", got)
		})
	}
}
