// Package martsearch embeds the aggregating search in a Go program without the HTTP
// layer. A search runs one query against the primary index, fans the page's keys out
// to every configured dataset and returns the merged records, caching both the index
// page and each record's dataset payloads.
//
//	client, err := martsearch.New(ctx, martsearch.WithConfigFile("config/local.yaml"))
//	if err != nil { ... }
//	defer client.Close()
//
//	res, err := client.Search(ctx, "Cbx1", martsearch.WithPage(2))
//	for _, rec := range res.Records {
//	    fmt.Println(rec.Key, rec.Datasets["ensembl"].Len())
//	}
//	for _, e := range res.Errors { // datasets that failed or timed out
//	    log.Println(e)
//	}
//
// Search returns an error only when the index fails; dataset failures are reported
// in Result.Errors alongside the records that did merge.
package martsearch
