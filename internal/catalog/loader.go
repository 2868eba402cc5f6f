// Package catalog administers the menu and loads seed catalogs.
//
// A catalog is written in CUE and checked against an embedded schema before
// anything touches the store:
//
//	menu: "adobo-rice": {
//		name:     "Chicken Adobo with Rice"
//		category: "meals"
//		price:    "65.00"
//		stock:    40
//	}
//	wallets: "stu-001": "250.00"
//
// Prices and balances are strings; a float never carries money.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/shopspring/decimal"

	"github.com/mrdcvlsc/food-reservation/internal/domain"
)

//go:embed schema.cue
var schemaSource string

// Catalog is a decoded seed catalog, sorted by id.
type Catalog struct {
	Items    []ItemInput
	Balances []OpeningBalance
}

// OpeningBalance is a user's starting wallet credit.
type OpeningBalance struct {
	UserID string
	Amount decimal.Decimal
}

// LoadError is a catalog that failed to load or validate.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type itemDoc struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	Active   bool   `json:"active"`
}

// Load reads a catalog from a .cue file or from every .cue file in a directory.
func Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Field: "path", Message: err.Error()}
	}

	ctx := cuecontext.New()
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Field: "path", Message: err.Error()}
		}
		return decode(ctx, ctx.CompileBytes(data, cue.Filename(path)))
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Field: "path", Message: fmt.Sprintf("no CUE instances in %s", path)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueError(inst.Err)
	}
	return decode(ctx, ctx.BuildInstance(inst))
}

// Parse decodes a catalog from CUE source. filename is used in error positions.
func Parse(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()
	return decode(ctx, ctx.CompileBytes(src, cue.Filename(filename)))
}

func decode(ctx *cue.Context, v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, cueError(err)
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Catalog")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(err)
	}

	cat := &Catalog{}

	if menu := v.LookupPath(cue.ParsePath("menu")); menu.Exists() {
		iter, err := menu.Fields()
		if err != nil {
			return nil, cueError(err)
		}
		for iter.Next() {
			id := iter.Selector().Unquoted()
			var doc itemDoc
			if err := iter.Value().Decode(&doc); err != nil {
				return nil, cueError(err)
			}
			price, err := decimal.NewFromString(doc.Price)
			if err != nil {
				return nil, &LoadError{Field: "menu." + id + ".price", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			category, err := domain.ParseCategory(doc.Category)
			if err != nil {
				return nil, &LoadError{Field: "menu." + id + ".category", Message: err.Error(), Pos: iter.Value().Pos()}
			}
			cat.Items = append(cat.Items, ItemInput{
				ID:        id,
				Name:      doc.Name,
				Category:  category,
				UnitPrice: price,
				Stock:     doc.Stock,
				Active:    doc.Active,
			})
		}
	}

	if wallets := v.LookupPath(cue.ParsePath("wallets")); wallets.Exists() {
		iter, err := wallets.Fields()
		if err != nil {
			return nil, cueError(err)
		}
		for iter.Next() {
			user := iter.Selector().Unquoted()
			s, err := iter.Value().String()
			if err != nil {
				return nil, cueError(err)
			}
			amount, err := decimal.NewFromString(s)
			if err != nil {
				return nil, &LoadError{Field: "wallets." + user, Message: err.Error(), Pos: iter.Value().Pos()}
			}
			cat.Balances = append(cat.Balances, OpeningBalance{UserID: user, Amount: amount})
		}
	}

	if len(cat.Items) == 0 && len(cat.Balances) == 0 {
		return nil, &LoadError{Field: "catalog", Message: "no menu items or wallets found", Pos: v.Pos()}
	}

	sort.Slice(cat.Items, func(i, j int) bool { return cat.Items[i].ID < cat.Items[j].ID })
	sort.Slice(cat.Balances, func(i, j int) bool { return cat.Balances[i].UserID < cat.Balances[j].UserID })
	return cat, nil
}

// cueError keeps the first error's position, if it has one.
func cueError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
