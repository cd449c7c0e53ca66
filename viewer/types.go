package viewer

// EpisodeSummary is one row of the episode list.
type EpisodeSummary struct {
	EpisodeID   string  `json:"episode_id"`
	CandidateID string  `json:"candidate_id"`
	Source      string  `json:"source"`
	Size        int32   `json:"size"`
	Steps       int32   `json:"steps"`
	Score       int32   `json:"score"`
	Fitness     float32 `json:"fitness"`
	Died        bool    `json:"died"`
	SourceFile  string  `json:"file"`
}

// EpisodesResponse is the paginated response for /api/episodes.
type EpisodesResponse struct {
	Total    int64            `json:"total"`
	Episodes []EpisodeSummary `json:"episodes"`
}

// Point is a board cell.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Step is one stored step of an episode.
type Step struct {
	Step      int32     `json:"step"`
	Size      int32     `json:"size"`
	Action    int32     `json:"action"`
	Reward    float32   `json:"reward"`
	Fitness   float32   `json:"fitness"`
	Terminal  bool      `json:"terminal"`
	Score     int32     `json:"score"`
	Direction int32     `json:"direction"`
	Food      Point     `json:"food"`
	Body      []Point   `json:"body"`
	Features  []float32 `json:"features"`
}

// EpisodeResponse is the response for /api/episodes/{id}.
type EpisodeResponse struct {
	EpisodeID string `json:"episode_id"`
	Steps     []Step `json:"steps"`
}

// LiveFrame is pushed to websocket clients for every published step.
type LiveFrame struct {
	EpisodeID   string  `json:"episode_id"`
	CandidateID string  `json:"candidate_id"`
	Step        int     `json:"step"`
	Size        int     `json:"size"`
	Action      string  `json:"action"`
	Score       int     `json:"score"`
	Fitness     float64 `json:"fitness"`
	Terminal    bool    `json:"terminal"`
	Food        Point   `json:"food"`
	Body        []Point `json:"body"`
}
