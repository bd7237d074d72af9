package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// FlowResponse — краткое описание flow из API.
type FlowResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Nodes     int    `json:"nodes"`
	Edges     int    `json:"edges"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// FlowDocument — полный flow; узлы и рёбра не разбираются.
type FlowDocument struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Nodes     []json.RawMessage `json:"nodes"`
	Edges     []json.RawMessage `json:"edges"`
	CreatedAt string            `json:"created_at"`
}

// TokenUsage — расход токенов.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NodeResultResponse — результат узла.
type NodeResultResponse struct {
	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`
	Output     any    `json:"output"`
	TokensUsed int    `json:"tokens_used,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID          string               `json:"id"`
	FlowID      string               `json:"flow_id"`
	BatchID     string               `json:"batch_id,omitempty"`
	Status      string               `json:"status"`
	Input       any                  `json:"input"`
	NodeResults []NodeResultResponse `json:"node_results,omitempty"`
	FinalOutput string               `json:"final_output"`
	Tokens      TokenUsage           `json:"tokens"`
	CostUSD     float64              `json:"cost_usd"`
	StartedAt   string               `json:"started_at"`
	CompletedAt string               `json:"completed_at,omitempty"`
}

// Progress — прогресс batch.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// BatchResponse — batch из API.
type BatchResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	FlowIDs     []string `json:"flow_ids"`
	InputSetID  string   `json:"input_set_id,omitempty"`
	Inputs      []string `json:"inputs"`
	RunIDs      []string `json:"run_ids"`
	Progress    Progress `json:"progress"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// InputSetResponse — набор входов из API.
type InputSetResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Inputs    []string `json:"inputs"`
	CreatedAt string   `json:"created_at"`
}

// ScheduleResponse — schedule из API.
type ScheduleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	FlowIDs     []string `json:"flow_ids"`
	InputSetID  string   `json:"input_set_id"`
	CronExpr    string   `json:"cron_expr"`
	Timezone    string   `json:"timezone"`
	Enabled     bool     `json:"enabled"`
	NextDueAt   string   `json:"next_due_at,omitempty"`
	LastRunAt   string   `json:"last_run_at,omitempty"`
	LastBatchID string   `json:"last_batch_id,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// ProviderResponse — LLM-провайдер из каталога.
type ProviderResponse struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models"`
}

// StreamEvent — событие из SSE-потока run.
type StreamEvent struct {
	Type string
	Data json.RawMessage
}

// --- Request types ---

// CreateBatchRequest — запуск batch.
type CreateBatchRequest struct {
	Name       string   `json:"name,omitempty"`
	FlowIDs    []string `json:"flow_ids"`
	Inputs     []string `json:"inputs,omitempty"`
	InputSetID string   `json:"input_set_id,omitempty"`
}

// CreateInputSetRequest — создание набора входов.
type CreateInputSetRequest struct {
	Name   string   `json:"name"`
	Inputs []string `json:"inputs"`
}

// CreateScheduleRequest — создание schedule.
type CreateScheduleRequest struct {
	Name       string   `json:"name,omitempty"`
	FlowIDs    []string `json:"flow_ids"`
	InputSetID string   `json:"input_set_id"`
	CronExpr   string   `json:"cron_expr"`
	Timezone   string   `json:"timezone,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	FlowID  string
	BatchID string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// apiKeyHeader — префикс заголовков с ключами провайдеров.
const apiKeyHeader = "X-API-Key-"

// Client — HTTP-клиент для Shelly API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient без таймаута: SSE-поток живёт столько, сколько run.
	streamClient *http.Client
	apiKeys      map[string]string
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// WithAPIKeys задаёт ключи провайдеров, передаваемые при запуске run.
func (c *Client) WithAPIKeys(keys map[string]string) *Client {
	c.apiKeys = keys
	return c
}

// --- Flows ---

// ListFlows возвращает все flows.
func (c *Client) ListFlows() ([]FlowResponse, error) {
	var flows []FlowResponse
	err := c.list("/api/v1/flows", nil, &flows)
	return flows, err
}

// GetFlow возвращает flow по ID.
func (c *Client) GetFlow(id string) (*FlowDocument, error) {
	var flow FlowDocument
	err := c.get("/api/v1/flows/"+url.PathEscape(id), &flow)
	return &flow, err
}

// ExportFlow возвращает flow в YAML.
func (c *Client) ExportFlow(id string) ([]byte, error) {
	resp, err := c.do(http.MethodGet, "/api/v1/flows/"+url.PathEscape(id)+"?format=yaml", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// CreateFlow создаёт flow из JSON-документа.
func (c *Client) CreateFlow(doc []byte) (*FlowDocument, error) {
	var flow FlowDocument
	err := c.post("/api/v1/flows", json.RawMessage(doc), &flow)
	return &flow, err
}

// ImportFlow загружает документ flow (JSON или YAML) как есть.
func (c *Client) ImportFlow(doc []byte, overwrite bool) (*FlowDocument, error) {
	path := "/api/v1/flows/import"
	if overwrite {
		path += "?overwrite=true"
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeOf(doc))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var flow FlowDocument
	if err := c.decodeData(resp, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

// DeleteFlow удаляет flow.
func (c *Client) DeleteFlow(id string) error {
	return c.delete("/api/v1/flows/" + url.PathEscape(id))
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.FlowID != "" {
		params.Set("flow_id", opts.FlowID)
	}
	if opts.BatchID != "" {
		params.Set("batch_id", opts.BatchID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// StartRun выполняет flow и ждёт завершения run.
func (c *Client) StartRun(flowID string, input any) (*RunResponse, error) {
	req, err := c.runRequest(flowID, input)
	if err != nil {
		return nil, err
	}

	// Run может идти дольше обычного таймаута.
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var run RunResponse
	if err := c.decodeData(resp, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// StreamRun выполняет flow и передаёт события run в fn по мере поступления.
// Возвращает ID run из заголовка X-Run-ID.
func (c *Client) StreamRun(flowID string, input any, fn func(StreamEvent) error) (string, error) {
	req, err := c.runRequest(flowID, input)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return "", err
	}
	return resp.Header.Get("X-Run-ID"), readEvents(resp.Body, fn)
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

func (c *Client) runRequest(flowID string, input any) (*http.Request, error) {
	data, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/flows/"+url.PathEscape(flowID)+"/runs", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for provider, key := range c.apiKeys {
		req.Header.Set(apiKeyHeader+provider, key)
	}
	return req, nil
}

// --- Batches ---

// ListBatches возвращает последние batches.
func (c *Client) ListBatches(limit int) ([]BatchResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var batches []BatchResponse
	err := c.list("/api/v1/batches", params, &batches)
	return batches, err
}

// StartBatch ставит batch в очередь выполнения.
func (c *Client) StartBatch(req CreateBatchRequest) (*BatchResponse, error) {
	var b BatchResponse
	err := c.post("/api/v1/batches", req, &b)
	return &b, err
}

// GetBatch возвращает batch по ID.
func (c *Client) GetBatch(id string) (*BatchResponse, error) {
	var b BatchResponse
	err := c.get("/api/v1/batches/"+url.PathEscape(id), &b)
	return &b, err
}

// AbortBatch запрашивает отмену batch.
func (c *Client) AbortBatch(id string) error {
	return c.post("/api/v1/batches/"+url.PathEscape(id)+"/abort", nil, nil)
}

// --- Input sets ---

// ListInputSets возвращает наборы входов.
func (c *Client) ListInputSets() ([]InputSetResponse, error) {
	var sets []InputSetResponse
	err := c.list("/api/v1/input-sets", nil, &sets)
	return sets, err
}

// CreateInputSet создаёт набор входов.
func (c *Client) CreateInputSet(req CreateInputSetRequest) (*InputSetResponse, error) {
	var set InputSetResponse
	err := c.post("/api/v1/input-sets", req, &set)
	return &set, err
}

// DeleteInputSet удаляет набор входов.
func (c *Client) DeleteInputSet(id string) error {
	return c.delete("/api/v1/input-sets/" + url.PathEscape(id))
}

// --- Schedules ---

// ListSchedules возвращает schedules.
func (c *Client) ListSchedules() ([]ScheduleResponse, error) {
	var schedules []ScheduleResponse
	err := c.list("/api/v1/schedules", nil, &schedules)
	return schedules, err
}

// CreateSchedule создаёт schedule.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/v1/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает schedule по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/v1/schedules/"+url.PathEscape(id), &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет schedule.
func (c *Client) DeleteSchedule(id string) error {
	return c.delete("/api/v1/schedules/" + url.PathEscape(id))
}

// SetScheduleEnabled включает или выключает schedule.
func (c *Client) SetScheduleEnabled(id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	body := map[string]bool{"enabled": enabled}
	err := c.put("/api/v1/schedules/"+url.PathEscape(id)+"/enabled", body, &schedule)
	return &schedule, err
}

// --- Providers ---

// ListProviders возвращает каталог LLM-провайдеров.
func (c *Client) ListProviders() ([]ProviderResponse, error) {
	var providers []ProviderResponse
	err := c.list("/api/v1/providers", nil, &providers)
	return providers, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

// readEvents разбирает кадры SSE. Комментарии (heartbeat) пропускаются.
func readEvents(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 10<<20)

	var event StreamEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event.Type != "" {
				if err := fn(event); err != nil {
					return err
				}
			}
			event = StreamEvent{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

// contentTypeOf определяет тип документа flow по первому значимому символу.
func contentTypeOf(doc []byte) string {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}
	return "application/yaml"
}
