package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/textutil"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"
)

// maxFileSize caps how much of a file read_file_content returns.
const maxFileSize = 10000

// ToolsConfig holds dependencies for creating the agent tools.
type ToolsConfig struct {
	Loader  *brain.Loader
	WorkDir string
}

// Result is the output of every agent tool.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failure(format string, args ...any) (Result, error) {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}, nil
}

// --- Tool Input Structs ---

// BrainContextArgs is the input for brain_context tool.
type BrainContextArgs struct {
	Query string `json:"query" jsonschema:"description=The user's current question or task"`
}

// SearchMemoriesArgs is the input for search_memories tool.
type SearchMemoriesArgs struct {
	Query string `json:"query" jsonschema:"description=What to look for in long-term memory"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default 10)"`
}

// StoreMemoryArgs is the input for store_memory tool.
type StoreMemoryArgs struct {
	Content    string   `json:"content" jsonschema:"description=The fact, preference or snippet to remember"`
	Type       string   `json:"type,omitempty" jsonschema:"description=knowledge, preference, code_snippet, architecture, task or relationship"`
	Importance string   `json:"importance,omitempty" jsonschema:"description=critical, high, medium, low or trivial"`
	Tags       []string `json:"tags,omitempty" jsonschema:"description=Free-form tags"`
	Pinned     bool     `json:"pinned,omitempty" jsonschema:"description=Always load this memory into context"`
}

// TrackErrorArgs is the input for track_error tool.
type TrackErrorArgs struct {
	ErrorType    string `json:"error_type" jsonschema:"description=Error class, e.g. TypeError"`
	ErrorMessage string `json:"error_message" jsonschema:"description=The error message"`
	Solution     string `json:"solution" jsonschema:"description=How the error was fixed"`
}

// ReadFileArgs is the input for read_file_content tool.
type ReadFileArgs struct {
	Filepath string `json:"filepath" jsonschema:"description=Path of the file to read, relative to the working directory"`
}

// ListDirectoryArgs is the input for list_directory tool.
type ListDirectoryArgs struct {
	Path string `json:"path" jsonschema:"description=Directory to list, relative to the working directory"`
}

// --- Tool Handlers ---

func createBrainContextTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args BrainContextArgs) (Result, error) {
		if args.Query == "" {
			return failure("query is required")
		}
		c := cfg.Loader.LoadContext(ctx, args.Query, nil, brain.LoadOptions{})
		formatted := brain.FormatContext(c)
		if formatted == "" {
			return Result{Success: true, Data: "No stored context for this query."}, nil
		}
		return Result{Success: true, Data: formatted}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "brain_context",
		Description: "Load core knowledge, relevant memories and known error solutions for the current task. Call this before answering questions about the project.",
	}, handler)
}

func createSearchMemoriesTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args SearchMemoriesArgs) (Result, error) {
		if args.Query == "" {
			return failure("query is required")
		}

		embedding, err := cfg.Loader.Embed(ctx, args.Query)
		if err != nil {
			return failure("failed to generate embedding: %v", err)
		}

		found, err := cfg.Loader.SearchMemories(ctx, embedding, brain.SearchOptions{Limit: args.Limit})
		if err != nil {
			return failure("failed to search memories: %v", err)
		}
		if len(found) == 0 {
			return Result{Success: true, Data: "No relevant memories found."}, nil
		}
		return Result{Success: true, Data: brain.FormatRelevantLines(found)}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "search_memories",
		Description: "Semantic search over long-term memory. Returns matches with their relevance.",
	}, handler)
}

func createStoreMemoryTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args StoreMemoryArgs) (Result, error) {
		if args.Content == "" {
			return failure("content is required")
		}
		if args.Importance != "" && memory.Importance(args.Importance).Rank() > 4 {
			return failure("unknown importance %q", args.Importance)
		}

		id, err := cfg.Loader.AddMemory(ctx, brain.MemoryInput{
			Content:    args.Content,
			Type:       memory.Type(args.Type),
			Importance: memory.Importance(args.Importance),
			Tags:       args.Tags,
			IsPinned:   args.Pinned,
			Source:     "agent",
		})
		if err != nil {
			return failure("failed to store memory: %v", err)
		}
		return Result{Success: true, Data: "Stored memory " + id}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "store_memory",
		Description: "Save a fact, preference or code snippet to long-term memory for future conversations.",
	}, handler)
}

func createTrackErrorTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args TrackErrorArgs) (Result, error) {
		if args.ErrorType == "" || args.ErrorMessage == "" || args.Solution == "" {
			return failure("error_type, error_message, and solution are all required")
		}

		res, err := cfg.Loader.TrackError(ctx, brain.ErrorInput{
			ErrorType:    args.ErrorType,
			ErrorMessage: args.ErrorMessage,
			Solution:     args.Solution,
		})
		if err != nil {
			return failure("failed to track error: %v", err)
		}
		if res.Existing {
			return Result{Success: true, Data: "Known error " + res.ID + " encountered again."}, nil
		}
		return Result{Success: true, Data: "Recorded new error " + res.ID}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "track_error",
		Description: "Record an error you solved together with its solution so it can be recognised next time.",
	}, handler)
}

var errOutsideWorkDir = errors.New("access denied: path is outside working directory")

// confine resolves p against workDir and rejects paths that escape it.
func confine(workDir, p string) (string, error) {
	root, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	if p == "" {
		return root, nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideWorkDir
	}
	return abs, nil
}

func createReadFileTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ReadFileArgs) (Result, error) {
		if args.Filepath == "" {
			return failure("filepath is required")
		}

		absPath, err := confine(cfg.WorkDir, args.Filepath)
		if err != nil {
			return failure("%v", err)
		}

		content, err := os.ReadFile(absPath)
		if err != nil {
			return failure("failed to read file: %v", err)
		}

		return Result{Success: true, Data: textutil.Truncate(string(content), maxFileSize, "\n... (truncated)")}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "read_file_content",
		Description: "Read a source file inside the working directory.",
	}, handler)
}

func createListDirectoryTool(cfg ToolsConfig) (tool.Tool, error) {
	handler := func(ctx tool.Context, args ListDirectoryArgs) (Result, error) {
		absPath, err := confine(cfg.WorkDir, args.Path)
		if err != nil {
			return failure("%v", err)
		}

		entries, err := os.ReadDir(absPath)
		if err != nil {
			return failure("failed to read directory: %v", err)
		}

		items := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			item := map[string]any{
				"name":  entry.Name(),
				"isDir": entry.IsDir(),
			}
			if info, err := entry.Info(); err == nil {
				item["size"] = textutil.FormatBytes(info.Size())
			}
			items = append(items, item)
		}

		return Result{Success: true, Data: items}, nil
	}

	return functiontool.New(functiontool.Config{
		Name:        "list_directory",
		Description: "List files and subdirectories inside the working directory.",
	}, handler)
}

// BuildTools creates all agent tools with the given configuration.
func BuildTools(cfg ToolsConfig) ([]tool.Tool, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("brain loader is required")
	}

	builders := []struct {
		name  string
		build func(ToolsConfig) (tool.Tool, error)
	}{
		{"brain_context", createBrainContextTool},
		{"search_memories", createSearchMemoriesTool},
		{"store_memory", createStoreMemoryTool},
		{"track_error", createTrackErrorTool},
		{"read_file_content", createReadFileTool},
		{"list_directory", createListDirectoryTool},
	}

	tools := make([]tool.Tool, 0, len(builders))
	for _, b := range builders {
		t, err := b.build(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s tool: %w", b.name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}
