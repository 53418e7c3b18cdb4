package models

// BlogPost is a post returned by the blog REST API.
type BlogPost struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Excerpt            string      `json:"excerpt"`
	FirstPublishedDate string      `json:"firstPublishedDate"`
	Slug               string      `json:"slug"`
	CoverMedia         *CoverMedia `json:"coverMedia,omitempty"`
}

type CoverMedia struct {
	Image *CoverImage `json:"image,omitempty"`
}

type CoverImage struct {
	URL string `json:"url"`
}

// ImageURL returns the cover image URL, or "" when the post has none.
func (p BlogPost) ImageURL() string {
	if p.CoverMedia == nil || p.CoverMedia.Image == nil {
		return ""
	}
	return p.CoverMedia.Image.URL
}

// BlogResponse is the envelope of the list posts endpoint.
type BlogResponse struct {
	Posts    []BlogPost   `json:"posts"`
	MetaData BlogMetaData `json:"metaData"`
}

type BlogMetaData struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}
