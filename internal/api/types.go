package api

// ComposeRequest asks for task-conditioned prompts. Indices defaults to
// the table's positions 0..T-1 for every batch element.
type ComposeRequest struct {
	TaskIDs []int   `json:"task_ids"`
	Indices [][]int `json:"indices,omitempty"`
}

type Composition struct {
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	CreatedAt int64     `json:"created_at"`
	TaskIDs   []int     `json:"task_ids"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
}

type TableInfo struct {
	Object             string           `json:"object"`
	PeftType           string           `json:"peft_type"`
	InitMode           string           `json:"init_mode"`
	NumVirtualTokens   int              `json:"num_virtual_tokens"`
	TotalVirtualTokens int              `json:"total_virtual_tokens"`
	TokenDim           int              `json:"token_dim"`
	NumRanks           int              `json:"num_ranks"`
	NumTasks           int              `json:"num_tasks"`
	Shapes             map[string][]int `json:"shapes"`
}

type DeleteResult struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
