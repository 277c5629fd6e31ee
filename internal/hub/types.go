package hub

// datasetInfo is the Hub's answer to a repo-revision info query. Only
// the sibling list is consumed here.
type datasetInfo struct {
	Siblings []sibling `json:"siblings"`
}

// sibling describes one file in a dataset revision.
type sibling struct {
	Rfilename string   `json:"rfilename"`
	LFS       *lfsInfo `json:"lfs,omitempty"`
}

// lfsInfo is the LFS metadata block attached to large files. Files
// stored inline (below the LFS threshold) have none, which is the
// "present, no marker" state.
type lfsInfo struct {
	Oid          string `json:"oid"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

// refs is the Hub's branch listing for a repo.
type refs struct {
	Branches []ref `json:"branches"`
}

// ref names one branch.
type ref struct {
	Name string `json:"name"`
}

// whoAmI is the token-validation response.
type whoAmI struct {
	Name string `json:"name"`
}

// commitHeader is the first NDJSON line of a commit request.
type commitHeader struct {
	Summary string `json:"summary"`
}

// deletedFile is the payload of a deletedFile commit operation.
type deletedFile struct {
	Path string `json:"path"`
}
