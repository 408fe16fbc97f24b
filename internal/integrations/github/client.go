// Package github reads and writes repository files through the GitHub
// contents API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"
)

var (
	// ErrNotFound is returned when the file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrRepoRequired is returned when neither the call nor the client
	// names an owner and repository.
	ErrRepoRequired = errors.New("github owner and repo are required")
)

const defaultBranch = "main"

// File is a decoded repository file.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
}

// UpdateResult describes a committed file change.
type UpdateResult struct {
	Path      string `json:"path"`
	SHA       string `json:"sha"`
	CommitSHA string `json:"commit_sha"`
	Created   bool   `json:"created"`
}

// Client wraps go-github for file operations on a default repository.
type Client struct {
	gh           *gh.Client
	defaultOwner string
	defaultRepo  string
}

// NewClient creates an authenticated client. owner and repo are used when a
// call leaves them empty.
func NewClient(token, owner, repo string) *Client {
	client := gh.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &Client{gh: client, defaultOwner: owner, defaultRepo: repo}
}

// WithBaseURL points the client at another API root, such as GitHub
// Enterprise or a test server.
func (c *Client) WithBaseURL(base string) (*Client, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid github base url: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

func (c *Client) repo(owner, repo string) (string, string, error) {
	if owner == "" {
		owner = c.defaultOwner
	}
	if repo == "" {
		repo = c.defaultRepo
	}
	if owner == "" || repo == "" {
		return "", "", ErrRepoRequired
	}
	return owner, repo, nil
}

// GetFile fetches and decodes a file. branch defaults to main.
func (c *Client) GetFile(ctx context.Context, owner, repo, path, branch string) (File, error) {
	owner, repo, err := c.repo(owner, repo)
	if err != nil {
		return File{}, err
	}
	if branch == "" {
		branch = defaultBranch
	}

	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path,
		&gh.RepositoryContentGetOptions{Ref: branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return File{}, fmt.Errorf("%s/%s/%s: %w", owner, repo, path, ErrNotFound)
		}
		return File{}, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if file == nil {
		return File{}, fmt.Errorf("%s is a directory with %d entries", path, len(dir))
	}

	content, err := file.GetContent()
	if err != nil {
		return File{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return File{Path: file.GetPath(), Content: content, SHA: file.GetSHA(), Size: file.GetSize()}, nil
}

// UpdateFile commits content to path, creating the file when it does not
// exist yet. branch defaults to main.
func (c *Client) UpdateFile(ctx context.Context, owner, repo, path, content, message, branch string) (UpdateResult, error) {
	owner, repo, err := c.repo(owner, repo)
	if err != nil {
		return UpdateResult{}, err
	}
	if branch == "" {
		branch = defaultBranch
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(message),
		Content: []byte(content),
		Branch:  gh.String(branch),
	}

	existing, err := c.GetFile(ctx, owner, repo, path, branch)
	switch {
	case err == nil:
		opts.SHA = gh.String(existing.SHA)
	case errors.Is(err, ErrNotFound):
	default:
		return UpdateResult{}, err
	}

	var res *gh.RepositoryContentResponse
	if opts.SHA != nil {
		res, _, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	} else {
		res, _, err = c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	out := UpdateResult{Path: path, Created: opts.SHA == nil, CommitSHA: res.Commit.GetSHA()}
	if res.Content != nil {
		out.SHA = res.Content.GetSHA()
	}
	return out, nil
}
