package api

import (
	"net/http"

	"github.com/movelab/stance/internal/domain/pose"
	"github.com/movelab/stance/internal/engine/postprocess"
)

type keypointSchema struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type schemaResponse struct {
	Keypoints          []keypointSchema `json:"keypoints"`
	Bones              [][2]int         `json:"bones"`
	PresenceThreshold  float64          `json:"presence_threshold"`
	DetectionThreshold float64          `json:"detection_threshold"`
}

// SchemaHandler serves the keypoint layout contract so clients can render
// skeletons without hardcoding the index order.
type SchemaHandler struct {
	payload schemaResponse
}

// NewSchemaHandler creates a new schema handler. The payload never changes,
// so it is built once up front.
func NewSchemaHandler() *SchemaHandler {
	payload := schemaResponse{
		Keypoints:          make([]keypointSchema, 0, pose.KeypointCount),
		Bones:              make([][2]int, 0, len(pose.Bones)),
		PresenceThreshold:  pose.PresenceThreshold,
		DetectionThreshold: postprocess.DetectionThreshold,
	}
	for id := pose.KeypointID(0); id < pose.KeypointCount; id++ {
		payload.Keypoints = append(payload.Keypoints, keypointSchema{ID: int(id), Name: id.String()})
	}
	for _, bone := range pose.Bones {
		payload.Bones = append(payload.Bones, [2]int{int(bone[0]), int(bone[1])})
	}
	return &SchemaHandler{payload: payload}
}

// HandleSchema handles GET /schema requests.
func (h *SchemaHandler) HandleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.payload)
}
