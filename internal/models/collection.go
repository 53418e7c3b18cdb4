package models

// CollectionItem is one record of Collection.json.
type CollectionItem struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Order int    `json:"order"`
	Name  string `json:"name"`
}

// MenuItem is a collection entry with its URL resolved to an absolute playlist URL.
type MenuItem struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Order int    `json:"order"`
}

// Settings holds user settings persisted in settings.json.
type Settings struct {
	AuthorizationCode string `json:"authorizationCode"`
}
