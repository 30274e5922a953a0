package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/mnohosten/pkto/pkg/stm"
)

// Schema builds the read-only GraphQL schema over a runtime's current
// tobj values and observational counters. There are no mutations: the
// only way to change a tobj's value is through the transactional
// surface (pkg/server's /tx endpoints), never through this schema.
func Schema(rt *stm.Runtime) (graphql.Schema, error) {
	resolver := NewResolver(rt)

	tobjType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Tobj",
		Description: "A transactional object's latest committed version",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "tobj identifier in [0, N)",
			},
			"value": &graphql.Field{
				Type:        JSONScalar,
				Description: "Committed payload of the latest version",
			},
			"cts": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "Commit timestamp of the latest version",
			},
			"versionCount": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Number of versions currently retained, bounded by K",
			},
			"readerCount": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Raw reader-list slot count for the latest version",
			},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Stats",
		Description: "Runtime-wide observational counters",
		Fields: graphql.Fields{
			"totalVersions":            &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"totalReadListNodes":       &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"commits":                  &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"abortsMissingPredecessor": &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"abortsInvalidated":        &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"abortsPriorityLoss":       &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"abortsExplicit":           &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
			"victimsMarked":            &graphql.Field{Type: graphql.NewNonNull(graphql.Float)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"tobj": &graphql.Field{
				Type:        tobjType,
				Description: "A single tobj by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: resolver.Tobj,
			},
			"tobjs": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(tobjType)),
				Description: "Every tobj in the registry, ordered by id",
				Resolve:     resolver.Tobjs,
			},
			"size": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Fixed tobj count N the runtime was created with",
				Resolve:     resolver.Size,
			},
			"stats": &graphql.Field{
				Type:        statsType,
				Description: "Point-in-time snapshot of runtime counters",
				Resolve:     resolver.Stats,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}
