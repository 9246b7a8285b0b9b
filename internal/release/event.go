package release

import "strings"

// Event is the subset of a GitHub "release" webhook delivery packhub reads.
type Event struct {
	Action     string     `json:"action"`
	Release    Release    `json:"release"`
	Repository Repository `json:"repository"`
}

type Release struct {
	TagName    string  `json:"tag_name"`
	Body       string  `json:"body"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

type Repository struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// Owner is the account part of full_name.
func (r Repository) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return strings.TrimSpace(owner)
}

// TarballAsset returns the first asset that looks like a pack tarball.
func (r Release) TarballAsset() (Asset, bool) {
	for _, asset := range r.Assets {
		name := strings.ToLower(asset.Name)
		if strings.HasSuffix(name, ".tgz") || strings.HasSuffix(name, ".tar.gz") {
			return asset, true
		}
	}
	return Asset{}, false
}
