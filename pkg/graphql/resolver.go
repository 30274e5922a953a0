package graphql

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/mnohosten/pkto/pkg/stm"
)

// JSONScalar serializes a tobj's payload, which is declared `any` at
// the pkg/stm boundary (spec §3 Design Notes), as whatever JSON-ish
// shape it already is. There is no ParseLiteral-driven input use for
// this scalar since the schema exposes no mutations.
var JSONScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary tobj payload value",
	Serialize: func(value interface{}) interface{} {
		return value
	},
	ParseValue: func(value interface{}) interface{} {
		return value
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			return v.Value
		case *ast.IntValue:
			return v.Value
		case *ast.FloatValue:
			return v.Value
		case *ast.BooleanValue:
			return v.Value
		default:
			return nil
		}
	},
})

// Resolver holds the runtime a GraphQL query reads from.
type Resolver struct {
	rt *stm.Runtime
}

// NewResolver creates a Resolver bound to rt.
func NewResolver(rt *stm.Runtime) *Resolver {
	return &Resolver{rt: rt}
}

func viewToMap(v stm.TobjView) map[string]interface{} {
	return map[string]interface{}{
		"id":           v.ID,
		"value":        v.Value,
		"cts":          strconv.FormatUint(uint64(v.CTS), 10),
		"versionCount": v.VersionCount,
		"readerCount":  v.ReaderCount,
	}
}

// Tobj resolves the tobj(id) query.
func (r *Resolver) Tobj(p graphql.ResolveParams) (interface{}, error) {
	id, ok := p.Args["id"].(int)
	if !ok {
		return nil, fmt.Errorf("id is required")
	}
	view, err := r.rt.View(id)
	if err != nil {
		return nil, err
	}
	return viewToMap(view), nil
}

// Tobjs resolves the tobjs query.
func (r *Resolver) Tobjs(p graphql.ResolveParams) (interface{}, error) {
	views := r.rt.Views()
	out := make([]map[string]interface{}, len(views))
	for i, v := range views {
		out[i] = viewToMap(v)
	}
	return out, nil
}

// Size resolves the size query.
func (r *Resolver) Size(p graphql.ResolveParams) (interface{}, error) {
	return r.rt.Size(), nil
}

// Stats resolves the stats query.
func (r *Resolver) Stats(p graphql.ResolveParams) (interface{}, error) {
	snap := r.rt.Stats()
	return map[string]interface{}{
		"totalVersions":            snap.TotalVersions,
		"totalReadListNodes":       snap.TotalReadListNodes,
		"commits":                  snap.Commits,
		"abortsMissingPredecessor": snap.AbortsMissingPredecessor,
		"abortsInvalidated":        snap.AbortsInvalidated,
		"abortsPriorityLoss":       snap.AbortsPriorityLoss,
		"abortsExplicit":           snap.AbortsExplicit,
		"victimsMarked":            snap.VictimsMarked,
	}, nil
}
