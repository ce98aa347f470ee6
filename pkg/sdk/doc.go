// Package sdk provides a Go client for the findex filing index API.
//
// The client wraps the REST endpoints for indexing, status, search, and
// the SSE chat stream:
//
//	client := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//
//	_ = client.StartIndexing(ctx, "AAPL")
//	status, _ := client.Status(ctx, "AAPL")
//
//	results, _ := client.Search(ctx, "AAPL", sdk.SearchRequest{
//	    Query:       "revenue growth drivers",
//	    FilingTypes: []string{"10-K"},
//	})
//
//	_ = client.Chat(ctx, "AAPL", []sdk.ChatMessage{
//	    {Role: "user", Content: "How did margins develop?"},
//	}, func(e sdk.ChatEvent) error {
//	    if e.Type == "token" {
//	        fmt.Print(e.Content)
//	    }
//	    return nil
//	})
package sdk
