// Package builtin provides a handful of illustrative tool handlers —
// reply_to_user, compose_email, folder_find_duplicates, and google_search —
// sufficient to exercise the Executor, Plan Validator, Finalizer, and Reply
// Formatter end-to-end. Real mail/browser/search/file backends are out of
// scope; these handlers are deliberately thin.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/solace-ai/orchestrator/internal/tools"
	"github.com/solace-ai/orchestrator/internal/tools/toolerrors"
)

// ReplyToUserSpec registers the terminal reply_to_user tool. Its handler is
// a pass-through: the Finalizer (internal/finalizer), not this handler, is
// responsible for composing the user-visible reply from the resolved
// parameters recorded as this step's payload.
func ReplyToUserSpec() tools.Spec {
	return tools.Spec{
		Name:        "reply_to_user",
		Description: "Terminal step: delivers the final reply to the user.",
		ParameterSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string"},
				"details": {},
				"artifacts": {"type": "array", "items": {"type": "string"}},
				"status": {"type": "string"}
			},
			"required": ["message"]
		}`),
		Pure: true,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
				return tools.Result{Payload: params}, nil
			}), nil
		},
	}
}

// ComposeEmailSpec registers the delivery-terminal compose_email tool.
func ComposeEmailSpec(send func(to, subject, body string, attachments []string) error) tools.Spec {
	return tools.Spec{
		Name:        "compose_email",
		Description: "Drafts (and optionally sends) an email with an optional body or attachments.",
		ParameterSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"to": {"type": "string"},
				"subject": {"type": "string"},
				"body": {"type": "string"},
				"attachments": {"type": "array", "items": {"type": "string"}},
				"send": {"type": "boolean"}
			}
		}`),
		DeliveryTerminal: true,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(ctx tools.Context, params map[string]any) (tools.Result, error) {
				to, _ := params["to"].(string)
				subject, _ := params["subject"].(string)
				body, _ := params["body"].(string)
				var attachments []string
				if raw, ok := params["attachments"].([]any); ok {
					for _, a := range raw {
						if s, ok := a.(string); ok {
							attachments = append(attachments, s)
						}
					}
				}
				shouldSend, _ := params["send"].(bool)
				if shouldSend && send != nil {
					if err := send(to, subject, body, attachments); err != nil {
						return tools.Result{}, toolerrors.Classify(toolerrors.KindUnknown, err.Error(), true)
					}
				}
				return tools.Result{Payload: map[string]any{
					"to":          to,
					"subject":     subject,
					"sent":        shouldSend,
					"attachments": attachments,
				}}, nil
			}), nil
		},
	}
}

// DuplicateGroup is the folder_find_duplicates payload shape for one group
// of same-size files.
type DuplicateGroup struct {
	Files []DuplicateFile `json:"files"`
	Size  int64           `json:"size"`
	Count int             `json:"count"`
}

// DuplicateFile is one member of a DuplicateGroup.
type DuplicateFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FolderFindDuplicatesSpec registers a tool that scans a folder (within the
// configured sandbox roots) for files sharing identical size and content
// hash and reports them as duplicate groups.
func FolderFindDuplicatesSpec(sandboxRoots []string) tools.Spec {
	return tools.Spec{
		Name:        "folder_find_duplicates",
		Description: "Finds groups of duplicate files within a sandboxed folder.",
		ParameterSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"folder_path": {"type": ["string", "null"]}
			}
		}`),
		Pure: true,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
				folder, _ := params["folder_path"].(string)
				root, err := resolveSandboxed(sandboxRoots, folder)
				if err != nil {
					return tools.Result{}, toolerrors.Classify(toolerrors.KindOutOfSandbox, err.Error(), false)
				}
				groups, totalFiles, wastedBytes, err := findDuplicates(root)
				if err != nil {
					return tools.Result{}, toolerrors.Classify(toolerrors.KindUnknown, err.Error(), true)
				}
				dupArr := make([]any, 0, len(groups))
				for _, g := range groups {
					dupArr = append(dupArr, map[string]any{
						"files": filesToAny(g.Files),
						"size":  g.Size,
						"count": g.Count,
					})
				}
				return tools.Result{Payload: map[string]any{
					"total_duplicate_groups": len(groups),
					"total_duplicate_files":  totalFiles,
					"wasted_space_mb":        float64(wastedBytes) / (1024 * 1024),
					"duplicates":             dupArr,
				}}, nil
			}), nil
		},
	}
}

func filesToAny(files []DuplicateFile) []any {
	out := make([]any, len(files))
	for i, f := range files {
		out[i] = map[string]any{"name": f.Name, "path": f.Path}
	}
	return out
}

func resolveSandboxed(roots []string, requested string) (string, error) {
	if len(roots) == 0 {
		return "", fmt.Errorf("no sandbox roots configured")
	}
	base := roots[0]
	target := base
	if requested != "" {
		target = filepath.Join(base, requested)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	for _, r := range roots {
		absRoot, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absRoot, absTarget)
		if err == nil && rel != ".." && !filepath.IsAbs(rel) && !hasDotDotPrefix(rel) {
			return absTarget, nil
		}
	}
	return "", fmt.Errorf("path %q resolves outside sandbox roots", requested)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// findDuplicates groups files under root by identical size and content hash.
// Size is used as a cheap prefilter (distinct sizes can never collide); files
// are only hashed when another file of the same size exists, so an all-unique
// folder costs one stat pass and no hashing at all.
func findDuplicates(root string) ([]DuplicateGroup, int, int64, error) {
	bySize := make(map[int64][]string)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		bySize[info.Size()] = append(bySize[info.Size()], path)
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}

	var groups []DuplicateGroup
	var totalFiles int
	var wasted int64
	for size, paths := range bySize {
		if len(paths) < 2 {
			continue
		}
		byHash := make(map[string][]string)
		for _, path := range paths {
			sum, err := hashFile(path)
			if err != nil {
				return nil, 0, 0, err
			}
			byHash[sum] = append(byHash[sum], path)
		}
		for _, matching := range byHash {
			if len(matching) < 2 {
				continue
			}
			files := make([]DuplicateFile, len(matching))
			for i, path := range matching {
				files[i] = DuplicateFile{Name: filepath.Base(path), Path: path}
			}
			groups = append(groups, DuplicateGroup{Files: files, Size: size, Count: len(files)})
			totalFiles += len(files)
			wasted += size * int64(len(files)-1)
		}
	}
	return groups, totalFiles, wasted, nil
}

// hashFile returns the hex-encoded SHA-256 digest of the file at path.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GoogleSearchSpec registers a search tool. No real search backend is
// implemented; callers inject a search function, or the zero value returns
// an empty result set, sufficient for Validator/Executor wiring tests.
func GoogleSearchSpec(search func(query string) (string, error)) tools.Spec {
	return tools.Spec{
		Name:        "google_search",
		Description: "Searches the web and returns a short summary.",
		ParameterSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`),
		Pure:            true,
		ConcurrencySafe: true,
		NewHandler: func() (tools.Handler, error) {
			return tools.HandlerFunc(func(_ tools.Context, params map[string]any) (tools.Result, error) {
				query, _ := params["query"].(string)
				summary := ""
				if search != nil {
					s, err := search(query)
					if err != nil {
						return tools.Result{}, toolerrors.Classify(toolerrors.KindUnknown, err.Error(), true)
					}
					summary = s
				}
				return tools.Result{Payload: map[string]any{"query": query, "summary": summary}}, nil
			}), nil
		},
	}
}
