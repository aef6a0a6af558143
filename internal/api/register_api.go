package api

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinywideclouds/go-push-gateway/pkg/dispatch"
	"github.com/tinywideclouds/go-push-gateway/pkg/response"
)

// deviceKeyAlphabet is the shortuuid base57 alphabet: similar-looking
// characters (0, O, I, l, 1) are excluded.
const deviceKeyAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// deviceKeyLength matches the 22-character keys shortuuid produces.
const deviceKeyLength = 22

type RegisterAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewRegisterAPI(store dispatch.TokenStore, logger *slog.Logger) *RegisterAPI {
	return &RegisterAPI{
		Store:  store,
		Logger: logger.With("component", "RegisterAPI"),
	}
}

// deviceInfo accepts both the current and the legacy field names.
type deviceInfo struct {
	DeviceToken       string `json:"device_token"`
	LegacyDeviceToken string `json:"devicetoken"`
	DeviceKey         string `json:"device_key"`
	LegacyKey         string `json:"key"`
}

func (d *deviceInfo) token() string {
	if d.DeviceToken != "" {
		return d.DeviceToken
	}
	return d.LegacyDeviceToken
}

func (d *deviceInfo) key() string {
	if d.DeviceKey != "" {
		return d.DeviceKey
	}
	return d.LegacyKey
}

// HandleRegister serves POST /register: validates the APNs device token,
// generates a device key when the caller did not bring one, and stores the
// mapping.
func (api *RegisterAPI) HandleRegister(w http.ResponseWriter, r *http.Request) {
	info, err := parseDeviceInfo(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "request bind failed")
		return
	}

	token := info.token()
	if strings.TrimSpace(token) == "" {
		response.WriteError(w, http.StatusBadRequest, "device token is empty")
		return
	}
	if len(token) > 128 {
		response.WriteError(w, http.StatusBadRequest, "device token is too long (max 128 characters)")
		return
	}

	deviceKey := strings.TrimSpace(info.key())
	if deviceKey == "" {
		deviceKey = generateDeviceKey()
	}

	if err := api.Store.Put(r.Context(), deviceKey, token); err != nil {
		api.Logger.Error("failed to store device token", "device_key", deviceKey, "err", err)
		response.WriteError(w, http.StatusInternalServerError, "failed to store device token")
		return
	}

	api.Logger.Info("device registered", "device_key", deviceKey)

	// Both old and new field names, for client compatibility.
	response.WriteJSON(w, http.StatusOK, response.Data(map[string]string{
		"key":          deviceKey,
		"device_key":   deviceKey,
		"device_token": token,
	}))
}

// HandleRegisterCheck serves GET /register/{device_key}: reports whether the
// key is known without exposing the token.
func (api *RegisterAPI) HandleRegisterCheck(w http.ResponseWriter, r *http.Request) {
	deviceKey := chi.URLParam(r, "device_key")
	if strings.TrimSpace(deviceKey) == "" {
		response.WriteError(w, http.StatusBadRequest, "device_key is required")
		return
	}

	if _, err := api.Store.Get(r.Context(), deviceKey); err != nil {
		response.WriteError(w, http.StatusNotFound, "device key not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, response.Success())
}

// parseDeviceInfo reads registration fields from a JSON body, a form body,
// or the query string.
func parseDeviceInfo(r *http.Request) (*deviceInfo, error) {
	info := &deviceInfo{}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(info); err != nil {
			return nil, err
		}
	} else if err := r.ParseForm(); err == nil {
		info.DeviceToken = r.Form.Get("device_token")
		info.LegacyDeviceToken = r.Form.Get("devicetoken")
		info.DeviceKey = r.Form.Get("device_key")
		info.LegacyKey = r.Form.Get("key")
	}

	return info, nil
}

// generateDeviceKey encodes 128 random bits as a 22-character base57 string,
// compatible with shortuuid-style keys.
func generateDeviceKey() string {
	raw := uuid.New()

	num := new(big.Int).SetBytes(raw[:])
	base := big.NewInt(int64(len(deviceKeyAlphabet)))
	mod := new(big.Int)

	out := make([]byte, deviceKeyLength)
	for i := deviceKeyLength - 1; i >= 0; i-- {
		num.DivMod(num, base, mod)
		out[i] = deviceKeyAlphabet[mod.Int64()]
	}
	return string(out)
}
