// Package graphmap maps typed Go entities onto the nodes and edges of a
// graph store.
//
// An entity type declares its label, identity and attributes once, through
// entity.Declaration. The mapper uses that declaration to extract properties,
// hydrate values from nodes, provision exact and full-text indexes and
// create typed relationships, against any graph.Store. Two stores ship with
// the module: graph/boltgraph, embedded (bbolt + bleve), and
// graph/neo4jgraph, backed by a Neo4j server.
//
// # Declaring entities
//
//	type Lion struct {
//		entity.Base
//		Name string
//		Age  int
//	}
//
//	func (l *Lion) Declare() entity.Declaration[Lion] {
//		base := func(l *Lion) *entity.Base { return &l.Base }
//		return entity.Declaration[Lion]{
//			Identity: entity.BaseIdentity(base),
//			Attributes: append(entity.BaseAttributes(base),
//				entity.Field("GetName", func(l *Lion) *string { return &l.Name }).WithFullTextIndex("lion_name_ft"),
//				entity.Field("GetAge", func(l *Lion) *int { return &l.Age }).WithExactIndex(),
//			),
//		}
//	}
//
// # Mapping
//
//	store, err := boltgraph.Open("/var/lib/zoo")
//	if err != nil {
//		log.Fatal(err)
//	}
//	m, err := graphmap.New(store, graphmap.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close(ctx)
//
//	leo, err := graphmap.CreateUnique(ctx, m, &Lion{Name: "Leo", Age: 5})
//	fives, err := graphmap.FindByProperty[Lion](ctx, m, "age", 5)
//	hits, err := graphmap.Search[Lion](ctx, m, "lion_name_ft", "name", "leo")
//
// CreateUnique is create-if-absent keyed by identity: an entity that already
// carries an identity is fetched, never overwritten.
//
// # Relationships
//
// A RelationType names an edge kind between two entity types. AddRelatives
// creates the edges, storing relatives that have no identity yet, and
// Relatives and InverseRelatives walk them from either end:
//
//	roars := graphmap.NewRelationType[Lion, Sheep]("ROARS_AT", nil)
//	err = graphmap.AddRelatives(ctx, m, leo, roars, &Sheep{Name: "Dolly"})
//	sheep, err := graphmap.Relatives(ctx, m, leo, roars, graph.Outgoing)
//
// # Errors
//
// Every operation returns *Error values that match one of ErrLabelExtraction,
// ErrReflection, ErrDBOperation, ErrNotFound or ErrStorage with errors.Is.
// Lookups that find nothing return empty results, not errors.
//
// # Observability
//
// Operations log through log/slog, open an OpenTelemetry span named
// "graphmap.<operation>" and count created and deleted nodes and created
// relationships. Tracing and metrics are no-ops unless WithTracer and
// WithMeterProvider are given.
package graphmap
