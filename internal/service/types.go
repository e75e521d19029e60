package service

// The facade accepts operation parameters as a canonical JSON value tree
// (Task.Params) and materializes them into these typed option structs at
// the boundary, then marshals results back into the same canonical form
// for Task.Result. Each struct mirrors one operation's parameter set.

type CloneOptions struct {
	URL   string `json:"url"`
	Depth int    `json:"depth,omitempty"`
}

type FetchOptions struct {
	Remote string `json:"remote,omitempty"`
}

type PullOptions struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
}

type PushOptions struct {
	Remote string `json:"remote,omitempty"`
	Branch string `json:"branch,omitempty"`
}

type AddOptions struct {
	Pathspecs []string `json:"pathspecs,omitempty"`
}

type CommitOptions struct {
	Message     string `json:"message"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
}

type CheckoutOptions struct {
	Branch string `json:"branch"`
	Create bool   `json:"create,omitempty"`
}

type BranchOptions struct {
	Name       string `json:"name"`
	StartPoint string `json:"start_point,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

type RenameBranchOptions struct {
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

type MergeOptions struct {
	Branch string `json:"branch"`
}

type TagOptions struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
}

type RemoteOptions struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type LogOptions struct {
	Limit int `json:"limit,omitempty"`
}

type DiffOptions struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type ShowOptions struct {
	Ref string `json:"ref"`
}

type BlameOptions struct {
	File string `json:"file"`
}

type StashOptions struct {
	Message string `json:"message,omitempty"`
}

// StatusResult is the JSON shape returned by synchronous Status calls.
type StatusResult struct {
	IsDirty  bool   `json:"is_dirty"`
	Unpushed int    `json:"unpushed"`
	Behind   int    `json:"behind"`
	Branch   string `json:"branch"`
}

// UsageResult mirrors workspace.Usage for JSON responses.
type UsageResult struct {
	Total          int     `json:"total"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	MaxSizeBytes   int64   `json:"max_size_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}

// DiskSpaceResult mirrors workspace.DiskSpaceInfo for JSON responses.
type DiskSpaceResult struct {
	Total        uint64  `json:"total"`
	Used         uint64  `json:"used"`
	Free         uint64  `json:"free"`
	UsagePercent float64 `json:"usage_percent"`
}
