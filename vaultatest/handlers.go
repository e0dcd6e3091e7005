package vaultatest

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strconv"

	"github.com/google/uuid"

	"github.com/vaulta/vaulta-go/model"
	"github.com/vaulta/vaulta-go/sign"
)

const maxUploadMemory = 32 << 20

func (s *Server) routes(a *app) {
	auth := s.authenticate()

	a.handle(http.MethodGet, "/clients", s.listClients, auth)
	a.handle(http.MethodPost, "/clients", s.createClient, auth)
	a.handle(http.MethodGet, "/clients/by-client-id/{slug}", s.getClientBySlug, auth)
	a.handle(http.MethodGet, "/clients/{id}", s.getClient, auth)
	a.handle(http.MethodPut, "/clients/{id}", s.updateClient, auth)
	a.handle(http.MethodDelete, "/clients/{id}", s.deleteClient, auth)
	a.handle(http.MethodPost, "/clients/{id}/regenerate-secret", s.regenerateSecret, auth)

	a.handle(http.MethodPost, "/assets", s.uploadAsset, auth)
	a.handle(http.MethodPost, "/assets/search", s.searchAssets, auth)
	a.handle(http.MethodDelete, "/assets/{id}", s.deleteAsset, auth)
	a.handle(http.MethodGet, "/assets/download/{token}", s.downloadAsset)
	a.handle(http.MethodGet, "/assets/serve/{payload}", s.serveAsset)
}

// =============================================================================
// Clients

func (s *Server) listClients(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, err := pageFrom(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	out := make([]model.Client, 0, len(s.clients))
	for _, c := range window(s.clients, page) {
		out = append(out, c.Client)
	}
	s.mu.Unlock()

	return respondJSON(ctx, w, http.StatusOK, out)
}

func (s *Server) createClient(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var in model.ClientCreate
	if err := decode(r, &in); err != nil {
		return err
	}

	now := model.NewTimestamp(getValues(ctx).Now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clientBySlug(in.ClientID) != nil {
		return fail(http.StatusBadRequest, "Client ID already exists")
	}

	c := &storedClient{
		Client: model.Client{
			ID:                uuid.New(),
			Name:              in.Name,
			ClientID:          in.ClientID,
			SecretGeneratedAt: &now,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		secret: s.newSecret(),
	}
	s.clients = append(s.clients, c)

	return respondJSON(ctx, w, http.StatusCreated, model.ClientWithSecret{Client: c.Client, Secret: c.secret})
}

func (s *Server) getClient(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.client(id)
	if c == nil {
		return fail(http.StatusNotFound, "Client not found")
	}

	return respondJSON(ctx, w, http.StatusOK, c.Client)
}

func (s *Server) getClientBySlug(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.clientBySlug(r.PathValue("slug"))
	if c == nil {
		return fail(http.StatusNotFound, "Client not found")
	}

	return respondJSON(ctx, w, http.StatusOK, c.Client)
}

func (s *Server) updateClient(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}

	var in model.ClientUpdate
	if err := decode(r, &in); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.client(id)
	if c == nil {
		return fail(http.StatusNotFound, "Client not found")
	}

	if in.ClientID != nil && *in.ClientID != c.ClientID && s.clientBySlug(*in.ClientID) != nil {
		return fail(http.StatusBadRequest, "Client ID already exists")
	}

	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.ClientID != nil {
		c.ClientID = *in.ClientID
	}
	if in.SecretGeneratedAt != nil {
		ts := *in.SecretGeneratedAt
		c.SecretGeneratedAt = &ts
	}
	c.UpdatedAt = model.NewTimestamp(getValues(ctx).Now)

	return respondJSON(ctx, w, http.StatusOK, c.Client)
}

func (s *Server) deleteClient(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.clients {
		if c.ID == id {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			return respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Client deleted"})
		}
	}

	return fail(http.StatusNotFound, "Client not found")
}

func (s *Server) regenerateSecret(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.client(id)
	if c == nil {
		return fail(http.StatusNotFound, "Client not found")
	}

	now := model.NewTimestamp(getValues(ctx).Now)
	c.secret = s.newSecret()
	c.SecretGeneratedAt = &now
	c.UpdatedAt = now

	return respondJSON(ctx, w, http.StatusOK, model.ClientWithSecret{Client: c.Client, Secret: c.secret})
}

// =============================================================================
// Assets

func (s *Server) uploadAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return fail(http.StatusBadRequest, "invalid multipart body: %v", err)
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return fail(http.StatusUnprocessableEntity, "file is required")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	labels := model.Labels{}
	if raw := r.FormValue("labels"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &labels); err != nil {
			return fail(http.StatusBadRequest, "labels must be a JSON object")
		}
	}

	name := r.FormValue("name")
	if name == "" {
		name = hdr.Filename
	}

	mimeType := hdr.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := model.NewTimestamp(getValues(ctx).Now)
	a := &storedAsset{
		Asset: model.Asset{
			ID:                uuid.New(),
			Name:              name,
			Filename:          hdr.Filename,
			MimeType:          mimeType,
			Size:              int64(len(data)),
			HumanReadableSize: model.FormatSize(int64(len(data))),
			Labels:            labels,
			State:             "ready",
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		data:  data,
		token: uuid.NewString(),
	}

	s.mu.Lock()
	s.assets = append(s.assets, a)
	s.mu.Unlock()

	return respondJSON(ctx, w, http.StatusCreated, model.AssetUploadResponse{
		AssetID:           a.ID,
		URL:               s.URL + "/assets/download/" + a.token,
		ServeURL:          s.URL + sign.ServePath,
		Name:              a.Name,
		Filename:          a.Filename,
		MimeType:          a.MimeType,
		Size:              a.Size,
		HumanReadableSize: a.HumanReadableSize,
		Labels:            a.Labels,
		State:             a.State,
		StateMessage:      a.StateMessage,
	})
}

func (s *Server) searchAssets(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	page, err := pageFrom(r)
	if err != nil {
		return err
	}

	var body model.SearchBody
	if err := decode(r, &body); err != nil {
		return err
	}

	if len(body.Query.Labels) == 0 {
		return fail(http.StatusBadRequest, "Labels must be provided for asset search")
	}

	s.mu.Lock()
	var matched []*storedAsset
	for _, a := range s.assets {
		if labelsMatch(a.Labels, body.Query.Labels) {
			matched = append(matched, a)
		}
	}

	out := make([]model.Asset, 0, len(matched))
	for _, a := range window(matched, page) {
		out = append(out, a.Asset)
	}
	s.mu.Unlock()

	return respondJSON(ctx, w, http.StatusOK, out)
}

func (s *Server) deleteAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := pathUUID(r, "id")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.assets {
		if a.ID == id {
			s.assets = append(s.assets[:i], s.assets[i+1:]...)
			return respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Asset deleted"})
		}
	}

	return fail(http.StatusNotFound, "Asset not found")
}

func (s *Server) downloadAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	token := r.PathValue("token")

	s.mu.Lock()
	var found *storedAsset
	for _, a := range s.assets {
		if a.token == token {
			found = a
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return fail(http.StatusNotFound, "Asset not found")
	}

	return respondRaw(ctx, w, found)
}

func (s *Server) serveAsset(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tok, err := sign.Parse(r.PathValue("payload"))
	if err != nil {
		return fail(http.StatusBadRequest, "%v", err)
	}

	if tok.Expired(getValues(ctx).Now) {
		return fail(http.StatusForbidden, "Link expired")
	}

	assetID, err := uuid.Parse(tok.AssetID)
	if err != nil {
		return fail(http.StatusBadRequest, "invalid asset id")
	}

	s.mu.Lock()
	c := s.clientBySlug(tok.ClientID)
	a := s.asset(assetID)
	s.mu.Unlock()

	if c == nil {
		return fail(http.StatusForbidden, "Invalid signature")
	}

	if !hmac.Equal([]byte(sign.Signature(c.secret, tok.Payload())), []byte(tok.Signature)) {
		return fail(http.StatusForbidden, "Invalid signature")
	}

	if a == nil {
		return fail(http.StatusNotFound, "Asset not found")
	}

	return respondRaw(ctx, w, a)
}

// =============================================================================
// Helpers

func respondRaw(ctx context.Context, w http.ResponseWriter, a *storedAsset) error {
	setStatusCode(ctx, http.StatusOK)

	w.Header().Set("Content-Type", a.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.data)))
	w.WriteHeader(http.StatusOK)

	_, err := w.Write(a.data)

	return err
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(key))
	if err != nil {
		return uuid.Nil, fail(http.StatusUnprocessableEntity, "path param[%s] must be a uuid", key)
	}

	return id, nil
}

func pageFrom(r *http.Request) (model.Page, error) {
	var p model.Page

	for key, dst := range map[string]*int{"skip": &p.Skip, "limit": &p.Limit} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}

		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return model.Page{}, fail(http.StatusUnprocessableEntity, "query param[%s] must be a non-negative integer", key)
		}
		*dst = v
	}

	return p.Normalize(), nil
}

func window[T any](items []T, p model.Page) []T {
	if p.Skip >= len(items) {
		return nil
	}

	end := min(p.Skip+p.Limit, len(items))

	return items[p.Skip:end]
}

// labelsMatch reports whether have carries every key of want with an equal value.
func labelsMatch(have, want model.Labels) bool {
	for k, v := range want {
		got, ok := have[k]
		if !ok || !reflect.DeepEqual(normalize(got), normalize(v)) {
			return false
		}
	}

	return true
}

// normalize round-trips v through JSON so that numbers compare equal
// regardless of their Go type.
func normalize(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}

	return out
}
