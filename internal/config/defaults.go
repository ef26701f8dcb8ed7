package config

// Default returns the sample document written by `mllt new`.
func Default() *Document {
	return &Document{
		Site: SiteTable{
			BaseURL:    ptr("example.com"),
			PublishDir: ptr("./output"),
			Content:    ptr("./content"),
			Theme:      ptr("./theme"),
			Assets:     ptr("./assets"),
			Strict:     ptr(false),
		},
		Params: map[string]any{
			"title":                "MLLT Example Site",
			"desc":                 "This is an example MLLT site.",
			"some_nonstring_value": 42,
			"links": []map[string]any{
				{"name": "My Social Media", "value": "@example.bsky.app", "iconuri": "./bsky_icon.png"},
				{"name": "My Blog", "value": "https://blog.example.com"},
				{"name": "My Github", "value": "https://github.com", "iconuri": "./gh_icon.png"},
			},
			"made_with": map[string]any{
				"name": "mllt",
				"link": "https://github.com/Montessquio/mllt",
			},
		},
	}
}

func ptr[T any](v T) *T { return &v }
