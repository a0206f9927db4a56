// Package hybridann provides a hybrid approximate-nearest-neighbor vector
// index that partitions vectors by recency: new vectors live in a
// layered proximity graph tuned for low-latency, high-recall queries;
// vectors past a configurable age migrate into a partitioned
// (inverted-list) index tuned for compact memory and scalable recall.
//
// The top-level package holds the identifiers and the embedding
// primitives shared by every sub-index. The index implementations
// themselves live in sub-packages:
//
//   - pkg/distance     scalar and widened distance kernels, top-k selection
//   - pkg/quantization product quantization (optional compression)
//   - pkg/metadata     post-filter predicate tree and schema validation
//   - pkg/graphindex   the recent-side HNSW-style graph index
//   - pkg/partindex    the historical-side IVF-style partitioned index
//   - pkg/blobstore    the external path-keyed store collaborator
//   - pkg/chunkstore   LRU chunk cache + coalescing chunk loader
//   - pkg/persist      chunked manifest save/load
//   - pkg/hybrid       the coordinator that ties the two sides together
//
// # Quick start
//
//	cfg := hybrid.DefaultConfig()
//	idx := hybrid.New(cfg)
//	if err := idx.Initialize(ctx, trainingVectors); err != nil {
//		log.Fatal(err)
//	}
//	id := hybridann.NewVectorID()
//	if err := idx.Insert(ctx, id, vector); err != nil {
//		log.Fatal(err)
//	}
//	results, err := idx.Search(ctx, query, 10)
package hybridann
