package githubdocs

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/bull/paper-rag/internal/markdown"
	"github.com/bull/paper-rag/internal/source"
)

// Fetcher lists and fetches markdown files under one repository directory.
// It implements source.Source: each markdown file becomes one Document whose
// title and summary are extracted from the markdown structure.
type Fetcher struct {
	client    *Client
	extractor *markdown.Extractor
	owner     string
	repo      string
	basePath  string
}

// NewFetcher creates a document fetcher for owner/repo rooted at basePath.
func NewFetcher(client *Client, owner, repo, basePath string) *Fetcher {
	return &Fetcher{
		client:    client,
		extractor: markdown.NewExtractor(),
		owner:     owner,
		repo:      repo,
		basePath:  basePath,
	}
}

// Fetch lists all markdown files under basePath and converts each into a
// Document. A file whose markdown yields no title falls back to its path; a
// missing summary falls back to a truncated body.
func (f *Fetcher) Fetch(ctx context.Context) ([]source.Document, error) {
	paths, err := f.listDocsRecursive(ctx, f.basePath, "")
	if err != nil {
		return nil, err
	}

	docs := make([]source.Document, 0, len(paths))
	for _, relPath := range paths {
		content, err := f.fetchFile(ctx, relPath)
		if err != nil {
			return nil, err
		}

		title, summary := f.extractor.Extract([]byte(content))
		if title == "" {
			title = relPath
		}
		if summary == "" {
			summary = truncate(content, 500)
		}

		docs = append(docs, source.Document{
			ID:      uuid.New().String(),
			Title:   title,
			Summary: summary,
			Text:    content,
		})
	}
	return docs, nil
}

// listDocsRecursive traverses directories collecting relative .md paths.
func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if strings.HasSuffix(*item.Name, ".md") {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// fetchFile retrieves and decodes one file's content.
func (f *Fetcher) fetchFile(ctx context.Context, relativePath string) (string, error) {
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return "", fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return "", fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}
	return string(content), nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
