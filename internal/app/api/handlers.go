package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"app/internal/app/generator"
	"app/internal/app/settings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 64 << 20

type generateRequest struct {
	Text        string `json:"text"`
	ProfileID   string `json:"profile_id,omitempty"`
	Instruction string `json:"instruction,omitempty"`
}

func (api *API) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)

		return
	}

	genReq := &generator.GenerateRequest{
		Text:        req.Text,
		Instruction: req.Instruction,
	}

	if req.ProfileID != "" {
		id, err := uuid.Parse(req.ProfileID)
		if err != nil {
			http.Error(w, "invalid profile id", http.StatusBadRequest)

			return
		}

		genReq.ProfileID = &id
	}

	result, err := api.generator.Generate(r.Context(), genReq)
	if err != nil {
		writeErr(w, err)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (api *API) generations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	memos, err := api.history.List(r.Context(), limit)
	if err != nil {
		api.logger.Error("failed to list memos", "err", err)
		http.Error(w, "failed to list generations", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, memos)
}

func (api *API) enrollVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)

		return
	}

	name := r.FormValue("name")
	transcript := r.FormValue("transcript")

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)

		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read audio", http.StatusBadRequest)

		return
	}

	profile, err := api.generator.Enroll(r.Context(), name, audio, transcript)
	if err != nil {
		writeErr(w, err)

		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (api *API) listVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.registry.List())
}

func (api *API) removeVoice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid profile id", http.StatusBadRequest)

		return
	}

	if err = api.registry.Remove(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *API) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.settings.Get())
}

func (api *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)

		return
	}

	updated, err := api.settings.Update(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)

		return
	}

	writeJSON(w, http.StatusOK, updated)
}

type serverStatusResponse struct {
	State   string `json:"state"`
	Running bool   `json:"running"`
}

func (api *API) serverStatus(w http.ResponseWriter, r *http.Request) {
	state, running := api.supervisor.Status()

	writeJSON(w, http.StatusOK, &serverStatusResponse{
		State:   state.String(),
		Running: running,
	})
}

func (api *API) serverInstall(w http.ResponseWriter, r *http.Request) {
	// installs download gigabytes and outlive any http request, run detached
	// and report over the install websocket
	go func() {
		if err := api.supervisor.Install(context.Background()); err != nil {
			api.logger.Error("install failed", "err", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (api *API) serverRestart(w http.ResponseWriter, r *http.Request) {
	if err := api.supervisor.Restart(r.Context()); err != nil {
		writeErr(w, err)

		return
	}

	w.WriteHeader(http.StatusOK)
}
