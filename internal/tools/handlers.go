package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/easeaico/brain-agent/internal/brain"
	"github.com/easeaico/brain-agent/internal/integrations/github"
	"github.com/easeaico/brain-agent/internal/llm"
	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/vectorstore"
	"github.com/google/uuid"
)

func (d *Dispatcher) coreTools() []coreTool {
	return []coreTool{
		{Definition{Name: "ai_route", Description: "Route a prompt to the best provider for its task type and answer it.", Params: []Param{
			{"task", "string", "The prompt to answer", true},
			{"type", "string", "Task type: code, creative, reasoning, fast or vision. Detected from the prompt when empty", false},
		}}, d.aiRoute},
		{Definition{Name: "ask_openai", Description: "Ask OpenAI.", Params: []Param{
			{"prompt", "string", "User prompt", true},
			{"system", "string", "Optional system prompt", false},
			{"max_tokens", "number", "Maximum completion tokens", false},
		}}, d.askProvider(llm.ProviderOpenAI)},
		{Definition{Name: "ask_deepseek", Description: "Ask DeepSeek.", Params: []Param{
			{"prompt", "string", "User prompt", true},
			{"model", "string", "deepseek-chat or deepseek-coder", false},
		}}, d.askProvider(llm.ProviderDeepSeek)},
		{Definition{Name: "ask_openrouter", Description: "Ask any model through OpenRouter.", Params: []Param{
			{"prompt", "string", "User prompt", true},
			{"model", "string", "OpenRouter model id, auto when empty", false},
		}}, d.askProvider(llm.ProviderOpenRouter)},
		{Definition{Name: "ask_huggingface", Description: "Run a Hugging Face inference model.", Params: []Param{
			{"inputs", "string", "Model input", true},
			{"model", "string", "Model id", false},
		}}, d.askProvider(llm.ProviderHuggingFace)},
		{Definition{Name: "code_generate", Description: "Generate code with deepseek-coder.", Params: []Param{
			{"language", "string", "Target language", true},
			{"task", "string", "What the code should do", true},
			{"context", "string", "Additional context", false},
		}}, d.codeGenerate},
		{Definition{Name: "code_analyze", Description: "Review code for bugs, security, performance or style.", Params: []Param{
			{"code", "string", "Code to analyze", true},
			{"language", "string", "Language of the code", false},
			{"focus", "string", "performance, security, style, bugs or all", false},
		}}, d.codeAnalyze},
		{Definition{Name: "knowledge_store", Description: "Store a fact, code, conversation or preference in long-term memory.", Params: []Param{
			{"content", "string", "Content to remember", true},
			{"category", "string", "facts, code, conversations or preferences", false},
			{"tags", "array", "Tags", false},
		}}, d.knowledgeStore},
		{Definition{Name: "knowledge_query", Description: "Semantic search over long-term memory.", Params: []Param{
			{"query", "string", "Search query", true},
			{"category", "string", "Restrict to a category", false},
			{"limit", "number", "Maximum results, default 5", false},
		}}, d.knowledgeQuery},
		{Definition{Name: "brain_context", Description: "Load the mandatory, relevant and error context for a query.", Params: []Param{
			{"query", "string", "The user message", true},
			{"max_tokens", "number", "Token budget", false},
			{"skip_errors", "boolean", "Skip known errors", false},
			{"enforce_budget", "boolean", "Drop relevant memories to fit the budget", false},
		}}, d.brainContext},
		{Definition{Name: "error_track", Description: "Record an error and its solution; near-duplicates bump the existing entry.", Params: []Param{
			{"error_type", "string", "Error class, e.g. TypeError", true},
			{"error_message", "string", "Error message", true},
			{"solution", "string", "How it was fixed", false},
			{"technology", "array", "Technologies involved", false},
			{"tags", "array", "Tags", false},
		}}, d.errorTrack},
		{Definition{Name: "error_solved", Description: "Mark a known error as solved once more.", Params: []Param{
			{"id", "string", "Error id", true},
		}}, d.errorSolved},
		{Definition{Name: "qdrant_search", Description: "Vector search in a Qdrant collection.", Params: []Param{
			{"collection", "string", "Collection name", true},
			{"query", "string", "Search text", true},
			{"limit", "number", "Maximum results, default 5", false},
		}}, d.qdrantSearch},
		{Definition{Name: "qdrant_upsert", Description: "Embed text and upsert it into a Qdrant collection.", Params: []Param{
			{"collection", "string", "Collection name", true},
			{"text", "string", "Text to store", true},
			{"id", "string", "Point id (UUID or integer), generated when empty", false},
			{"metadata", "object", "Extra payload fields", false},
		}}, d.qdrantUpsert},
		{Definition{Name: "qdrant_list_collections", Description: "List Qdrant collections."}, d.qdrantListCollections},
		{Definition{Name: "qdrant_create_collection", Description: "Create a cosine Qdrant collection.", Params: []Param{
			{"name", "string", "Collection name", true},
			{"vector_size", "number", "Vector size, default 1536", false},
		}}, d.qdrantCreateCollection},
		{Definition{Name: "github_get_file", Description: "Read a file from a GitHub repository.", Params: []Param{
			{"path", "string", "File path", true},
			{"owner", "string", "Repository owner", false},
			{"repo", "string", "Repository name", false},
			{"branch", "string", "Branch, default main", false},
		}}, d.githubGetFile},
		{Definition{Name: "github_update_file", Description: "Create or update a file in a GitHub repository.", Params: []Param{
			{"path", "string", "File path", true},
			{"content", "string", "New file content", true},
			{"message", "string", "Commit message", true},
			{"owner", "string", "Repository owner", false},
			{"repo", "string", "Repository name", false},
			{"branch", "string", "Branch, default main", false},
		}}, d.githubUpdateFile},
		{Definition{Name: "register_tool", Description: "Register a tool backed by an HTTP endpoint.", Params: []Param{
			{"name", "string", "Tool name", true},
			{"endpoint", "string", "http or https URL the arguments are sent to", true},
			{"description", "string", "What the tool does", false},
			{"method", "string", "HTTP method, default POST", false},
			{"input_schema", "object", "JSON schema of the arguments", false},
		}}, d.registerTool},
		{Definition{Name: "list_registered_tools", Description: "List core and dynamic tools."}, d.listRegisteredTools},
		{Definition{Name: "remove_tool", Description: "Remove a dynamic tool.", Params: []Param{
			{"name", "string", "Tool name", true},
		}}, d.removeTool},
		{Definition{Name: "add_api_integration", Description: "Register one tool per endpoint of a REST API.", Params: []Param{
			{"name", "string", "Integration name, used as tool prefix", true},
			{"base_url", "string", "API base URL", true},
			{"endpoints", "array", "Endpoints: name, method, path, description", true},
			{"api_key", "string", "Bearer token", false},
		}}, d.addAPIIntegration},
		{Definition{Name: "web_search", Description: "Search the web.", Params: []Param{
			{"query", "string", "Search query", true},
			{"num_results", "number", "Number of results", false},
		}}, d.webSearch},
		{Definition{Name: "system_status", Description: "Report tool counts and configured integrations."}, d.systemStatus},
	}
}

func (d *Dispatcher) router() (*llm.Router, error) {
	if d.deps.Router == nil {
		return nil, fmt.Errorf("llm router: %w", ErrNotConfigured)
	}
	return d.deps.Router, nil
}

func (d *Dispatcher) loader() (*brain.Loader, error) {
	if d.deps.Loader == nil {
		return nil, fmt.Errorf("brain: %w", ErrNotConfigured)
	}
	return d.deps.Loader, nil
}

func (d *Dispatcher) qdrant() (*vectorstore.Client, llm.Embedder, error) {
	if d.deps.Qdrant == nil {
		return nil, nil, fmt.Errorf("qdrant: %w", ErrNotConfigured)
	}
	return d.deps.Qdrant, d.deps.Embedder, nil
}

func (d *Dispatcher) github() (*github.Client, error) {
	if d.deps.GitHub == nil {
		return nil, fmt.Errorf("github: %w", ErrNotConfigured)
	}
	return d.deps.GitHub, nil
}

// --- providers ---

func (d *Dispatcher) aiRoute(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Task   string `json:"task"`
		Prompt string `json:"prompt"`
		Type   string `json:"type"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	prompt := firstNonEmpty(args.Task, args.Prompt)
	if err := required("task", prompt); err != nil {
		return nil, err
	}
	r, err := d.router()
	if err != nil {
		return nil, err
	}

	route, resp, err := r.Complete(ctx, llm.Request{Prompt: prompt}, llm.TaskType(args.Type))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"result":     resp.Content,
		"model_used": resp.Model,
		"provider":   resp.Provider,
		"task_type":  route.Task,
	}, nil
}

func (d *Dispatcher) askProvider(name string) handlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args struct {
			Prompt    string `json:"prompt"`
			Inputs    string `json:"inputs"`
			System    string `json:"system"`
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		prompt := firstNonEmpty(args.Prompt, args.Inputs)
		if err := required("prompt", prompt); err != nil {
			return nil, err
		}
		r, err := d.router()
		if err != nil {
			return nil, err
		}
		p, err := r.Provider(name)
		if err != nil {
			return nil, err
		}
		return p.Complete(ctx, llm.Request{
			Prompt:    prompt,
			System:    args.System,
			Model:     args.Model,
			MaxTokens: args.MaxTokens,
		})
	}
}

func (d *Dispatcher) codeGenerate(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Language    string `json:"language"`
		Task        string `json:"task"`
		Description string `json:"description"`
		Context     string `json:"context"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	task := firstNonEmpty(args.Task, args.Description)
	if err := required("language", args.Language); err != nil {
		return nil, err
	}
	if err := required("task", task); err != nil {
		return nil, err
	}
	r, err := d.router()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Generate %s code for: %s\n", args.Language, task)
	if args.Context != "" {
		prompt += "\nContext: " + args.Context + "\n"
	}
	prompt += "\nProvide only the code, no explanations."

	_, resp, err := r.Complete(ctx, llm.Request{Prompt: prompt}, llm.TaskCode)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"code":     resp.Content,
		"language": args.Language,
		"provider": resp.Provider,
		"model":    resp.Model,
	}, nil
}

var analysisFocus = map[string]string{
	"performance": "performance optimization",
	"security":    "security vulnerabilities",
	"style":       "code style and readability",
	"bugs":        "potential bugs",
	"all":         "all aspects (bugs, security, performance, style)",
}

func (d *Dispatcher) codeAnalyze(ctx context.Context, raw json.RawMessage) (any, error) {
	args := struct {
		Code     string `json:"code"`
		Language string `json:"language"`
		Focus    string `json:"focus"`
	}{Language: "unknown", Focus: "all"}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("code", args.Code); err != nil {
		return nil, err
	}
	focus, ok := analysisFocus[args.Focus]
	if !ok {
		return nil, fmt.Errorf("%w: unknown focus %q", ErrInvalidArguments, args.Focus)
	}
	r, err := d.router()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Analyze this %s code for %s:\n\n```%s\n%s\n```\n\nProvide specific issues and recommendations.",
		args.Language, focus, args.Language, args.Code)
	_, resp, err := r.Complete(ctx, llm.Request{Prompt: prompt}, llm.TaskReasoning)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"analysis": resp.Content,
		"focus":    args.Focus,
		"provider": resp.Provider,
		"model":    resp.Model,
	}, nil
}

// --- knowledge ---

var categoryTypes = map[string]memory.Type{
	"facts":         memory.TypeKnowledge,
	"code":          memory.TypeCodeSnippet,
	"conversations": memory.TypeConversation,
	"preferences":   memory.TypePreference,
}

// categoryType maps a tool category onto a memory type. Known memory type
// names pass through unchanged.
func categoryType(category string) memory.Type {
	if t, ok := categoryTypes[category]; ok {
		return t
	}
	return memory.Type(category)
}

func (d *Dispatcher) knowledgeStore(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Content  string   `json:"content"`
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("content", args.Content); err != nil {
		return nil, err
	}
	l, err := d.loader()
	if err != nil {
		return nil, err
	}

	t := memory.TypeKnowledge
	tags := args.Tags
	if args.Category != "" {
		t = categoryType(args.Category)
		tags = append(tags, args.Category)
	}
	id, err := l.AddMemory(ctx, brain.MemoryInput{
		Content: args.Content,
		Type:    t,
		Tags:    tags,
		Source:  "user",
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"stored":   true,
		"id":       id,
		"category": args.Category,
		"type":     t,
	}, nil
}

type knowledgeHit struct {
	ID      string      `json:"id"`
	Content string      `json:"content"`
	Type    memory.Type `json:"type"`
	Score   float64     `json:"score"`
	Tags    []string    `json:"tags"`
}

func (d *Dispatcher) knowledgeQuery(ctx context.Context, raw json.RawMessage) (any, error) {
	args := struct {
		Query    string `json:"query"`
		Category string `json:"category"`
		Limit    int    `json:"limit"`
	}{Limit: 5}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("query", args.Query); err != nil {
		return nil, err
	}
	l, err := d.loader()
	if err != nil {
		return nil, err
	}

	vec, err := l.Embed(ctx, args.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	opts := brain.SearchOptions{Limit: args.Limit}
	if args.Category != "" {
		opts.Type = categoryType(args.Category)
	}
	found, err := l.SearchMemories(ctx, vec, opts)
	if err != nil {
		return nil, err
	}

	results := make([]knowledgeHit, 0, len(found))
	for _, m := range found {
		results = append(results, knowledgeHit{ID: m.ID, Content: m.Content, Type: m.Type, Score: m.Similarity, Tags: m.Tags})
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}

func (d *Dispatcher) brainContext(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query         string `json:"query"`
		MaxTokens     int    `json:"max_tokens"`
		SkipErrors    bool   `json:"skip_errors"`
		EnforceBudget bool   `json:"enforce_budget"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("query", args.Query); err != nil {
		return nil, err
	}
	l, err := d.loader()
	if err != nil {
		return nil, err
	}

	c := l.LoadContext(ctx, args.Query, nil, brain.LoadOptions{
		MaxTokens:     args.MaxTokens,
		SkipErrors:    args.SkipErrors,
		EnforceBudget: args.EnforceBudget,
	})
	return map[string]any{"context": c, "formatted": brain.FormatContext(c)}, nil
}

func (d *Dispatcher) errorTrack(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ErrorType    string         `json:"error_type"`
		ErrorMessage string         `json:"error_message"`
		Solution     string         `json:"solution"`
		Context      map[string]any `json:"context"`
		Technology   []string       `json:"technology"`
		Tags         []string       `json:"tags"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("error_type", args.ErrorType); err != nil {
		return nil, err
	}
	if err := required("error_message", args.ErrorMessage); err != nil {
		return nil, err
	}
	l, err := d.loader()
	if err != nil {
		return nil, err
	}
	return l.TrackError(ctx, brain.ErrorInput{
		ErrorType:    args.ErrorType,
		ErrorMessage: args.ErrorMessage,
		Solution:     args.Solution,
		Context:      args.Context,
		Technology:   args.Technology,
		Tags:         args.Tags,
	})
}

func (d *Dispatcher) errorSolved(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		ID string `json:"id"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("id", args.ID); err != nil {
		return nil, err
	}
	l, err := d.loader()
	if err != nil {
		return nil, err
	}
	if err := l.MarkErrorSolved(ctx, args.ID); err != nil {
		return nil, err
	}
	return map[string]any{"solved": true, "id": args.ID}, nil
}

// --- qdrant ---

func (d *Dispatcher) qdrantSearch(ctx context.Context, raw json.RawMessage) (any, error) {
	args := struct {
		Collection string `json:"collection"`
		Query      string `json:"query"`
		Limit      int    `json:"limit"`
	}{Limit: 5}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("collection", args.Collection); err != nil {
		return nil, err
	}
	if err := required("query", args.Query); err != nil {
		return nil, err
	}
	client, embedder, err := d.qdrant()
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder: %w", ErrNotConfigured)
	}

	vec, err := embedder.Embed(ctx, args.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := client.Search(ctx, args.Collection, vectorstore.SearchRequest{Vector: vec, Limit: args.Limit})
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}

func (d *Dispatcher) qdrantUpsert(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Collection string         `json:"collection"`
		ID         string         `json:"id"`
		Text       string         `json:"text"`
		Metadata   map[string]any `json:"metadata"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("collection", args.Collection); err != nil {
		return nil, err
	}
	if err := required("text", args.Text); err != nil {
		return nil, err
	}
	client, embedder, err := d.qdrant()
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder: %w", ErrNotConfigured)
	}

	vec, err := embedder.Embed(ctx, args.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if args.ID == "" {
		args.ID = uuid.NewString()
	}
	payload := make(map[string]any, len(args.Metadata)+2)
	maps.Copy(payload, args.Metadata)
	payload["text"] = args.Text
	payload["timestamp"] = d.now().UTC().Format(time.RFC3339)

	point := vectorstore.Point{ID: vectorstore.PointID(args.ID), Vector: vec, Payload: payload}
	if err := client.Upsert(ctx, args.Collection, []vectorstore.Point{point}); err != nil {
		return nil, err
	}
	return map[string]any{"upserted": true, "id": args.ID, "collection": args.Collection}, nil
}

func (d *Dispatcher) qdrantListCollections(ctx context.Context, _ json.RawMessage) (any, error) {
	client, _, err := d.qdrant()
	if err != nil {
		return nil, err
	}
	names, err := client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"collections": names}, nil
}

func (d *Dispatcher) qdrantCreateCollection(ctx context.Context, raw json.RawMessage) (any, error) {
	args := struct {
		Name       string `json:"name"`
		VectorSize int    `json:"vector_size"`
	}{VectorSize: vectorstore.DefaultDimension}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("name", args.Name); err != nil {
		return nil, err
	}
	client, _, err := d.qdrant()
	if err != nil {
		return nil, err
	}
	if err := client.CreateCollection(ctx, args.Name, args.VectorSize, vectorstore.DistanceCosine); err != nil {
		return nil, err
	}
	return map[string]any{
		"created":     true,
		"name":        args.Name,
		"vector_size": args.VectorSize,
		"distance":    vectorstore.DistanceCosine,
	}, nil
}

// --- github ---

type githubFileArgs struct {
	Owner   string `json:"owner"`
	Repo    string `json:"repo"`
	Path    string `json:"path"`
	Branch  string `json:"branch"`
	Content string `json:"content"`
	Message string `json:"message"`
}

func (d *Dispatcher) githubGetFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args githubFileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("path", args.Path); err != nil {
		return nil, err
	}
	client, err := d.github()
	if err != nil {
		return nil, err
	}
	f, err := client.GetFile(ctx, args.Owner, args.Repo, args.Path, args.Branch)
	if err != nil {
		return nil, githubErr(err)
	}
	return f, nil
}

func (d *Dispatcher) githubUpdateFile(ctx context.Context, raw json.RawMessage) (any, error) {
	var args githubFileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := required("path", args.Path); err != nil {
		return nil, err
	}
	if err := required("message", args.Message); err != nil {
		return nil, err
	}
	client, err := d.github()
	if err != nil {
		return nil, err
	}
	res, err := client.UpdateFile(ctx, args.Owner, args.Repo, args.Path, args.Content, args.Message, args.Branch)
	if err != nil {
		return nil, githubErr(err)
	}
	return res, nil
}

func githubErr(err error) error {
	if errors.Is(err, github.ErrRepoRequired) {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	return err
}

// --- status ---

func (d *Dispatcher) webSearch(_ context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query      string `json:"query"`
		NumResults int    `json:"num_results"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return map[string]any{
		"message":    "Web search coming soon",
		"query":      args.Query,
		"suggestion": "Use Tavily API or Brave Search API for implementation",
	}, nil
}

// ToolCounts is the tools block of a Status.
type ToolCounts struct {
	Core    int `json:"core"`
	Dynamic int `json:"dynamic"`
	Total   int `json:"total"`
}

// Status is the system_status result.
type Status struct {
	Status       string          `json:"status"`
	Version      string          `json:"version"`
	Timestamp    string          `json:"timestamp"`
	Tools        ToolCounts      `json:"tools"`
	Integrations map[string]bool `json:"integrations"`
}

// Status reports tool counts and which integrations are configured.
func (d *Dispatcher) Status() Status {
	core, dynamic := d.Counts()
	integrations := make(map[string]bool, len(d.deps.Integrations))
	maps.Copy(integrations, d.deps.Integrations)
	return Status{
		Status:       "operational",
		Version:      Version,
		Timestamp:    d.now().UTC().Format(time.RFC3339),
		Tools:        ToolCounts{Core: core, Dynamic: dynamic, Total: core + dynamic},
		Integrations: integrations,
	}
}

func (d *Dispatcher) systemStatus(context.Context, json.RawMessage) (any, error) {
	return d.Status(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
