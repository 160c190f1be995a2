package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func readBodyJSON(r *http.Request, maxBytes int64, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// tenantIDFromReq 租户来自 tenant_id 查询参数或 X-Tenant-Id 头
func tenantIDFromReq(w http.ResponseWriter, r *http.Request) (string, bool) {
	if tid := r.URL.Query().Get("tenant_id"); tid != "" && tid != "null" {
		return tid, true
	}
	if tid := r.Header.Get("X-Tenant-Id"); tid != "" && tid != "null" {
		return tid, true
	}
	writeJSON(w, http.StatusOK, Fail("tenant_id is required"))
	return "", false
}

func actorIDFromReq(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

// pathParam 取 prefix 之后的第一段；rest 为剩余部分（不含前导 /）
func pathParam(path, prefix string) (id, rest string) {
	tail := strings.TrimPrefix(path, prefix)
	if tail == path {
		return "", ""
	}
	id, rest, _ = strings.Cut(tail, "/")
	return id, rest
}
