package app

import (
	"time"

	"github.com/ariefcatur/go-pharmacy-orders/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-orders/internal/stock"
)

// Seed returns a small demo catalog with stock for the memory backend.
func Seed() (*catalog.MemoryStore, *stock.MemoryStore) {
	now := time.Now().UTC()
	products := catalog.NewMemoryStore()
	counters := stock.NewMemoryStore()

	add := func(p catalog.Product, onHand int) {
		p.Status = catalog.StatusActive
		p.CreatedAt, p.UpdatedAt = now, now
		products.Put(p)
		counters.Set(p.ID, onHand, 0)
	}
	add(catalog.Product{ID: "prd-paracetamol-500", SKU: "PARA-500-20", Name: "Paracetamol 500mg x20", Brand: "Panadol", Category: "pain-relief",
		PriceCents: 1850, UnitsPerBasePackage: 1, MaxOrderQty: 5}, 120)
	add(catalog.Product{ID: "prd-amoxicillin-250", SKU: "AMOX-250-STRIP", Name: "Amoxicillin 250mg strip", Brand: "Generic", Category: "antibiotics",
		PriceCents: 2400, UnitsPerBasePackage: 10, AllowUnitSale: true, RequiresPrescription: true}, 40)
	add(catalog.Product{ID: "prd-vitamin-c-1000", SKU: "VITC-1000-30", Name: "Vitamin C 1000mg x30", Brand: "Redoxon", Category: "vitamins",
		PriceCents: 3200, UnitsPerBasePackage: 1}, 80)
	add(catalog.Product{ID: "prd-ors-sachet", SKU: "ORS-SACHET-10", Name: "Oral rehydration salts x10", Brand: "Oralit", Category: "digestive",
		PriceCents: 900, UnitsPerBasePackage: 1, MinOrderQty: 2}, 200)
	return products, counters
}
