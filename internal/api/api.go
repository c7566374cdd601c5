// Package api implements the five HTTP handlers that map the public
// routes onto document store operations.
package api

import (
	"github.com/jhegemann/muonbase/internal/docstore"
	"github.com/jhegemann/muonbase/internal/httpproto"
	"github.com/jhegemann/muonbase/internal/httpserver"
	"github.com/jhegemann/muonbase/internal/userpool"
	"github.com/jhegemann/muonbase/internal/value"
)

// Service names under which the store and user pool are registered with
// the server.
const (
	DatabaseService = "store"
	UserService     = "users"
)

func noSuccess() []byte { return []byte(`{"success":false}`) }

func jsonResponse(status int, message string, body []byte) httpproto.Response {
	resp := httpproto.NewResponse(status, message)
	resp.Headers.Set("content-type", "application/json")
	resp.Body = body
	return resp
}

func internalError() httpproto.Response {
	return jsonResponse(500, "Internal Server Error", noSuccess())
}

func unauthorized() httpproto.Response {
	return jsonResponse(401, "Unauthorized", noSuccess())
}

func badRequest() httpproto.Response {
	return jsonResponse(400, "Bad Request", noSuccess())
}

// services resolves the store and user pool out of a ServiceMap, and
// reports whether both were registered with the expected concrete type.
func services(m httpserver.ServiceMap) (*docstore.Store, *userpool.Pool, bool) {
	storeSvc, ok := m[DatabaseService]
	if !ok {
		return nil, nil, false
	}
	usersSvc, ok := m[UserService]
	if !ok {
		return nil, nil, false
	}
	store, ok := storeSvc.(*docstore.Store)
	if !ok {
		return nil, nil, false
	}
	users, ok := usersSvc.(*userpool.Pool)
	if !ok {
		return nil, nil, false
	}
	return store, users, true
}

func accessPermitted(req httpproto.Request, users *userpool.Pool) bool {
	auth, _ := req.Headers.Get("authorization")
	return users.CheckBasicAuth(auth)
}

func contentTypeOK(req httpproto.Request) bool {
	v, ok := req.Headers.Get("content-type")
	return ok && v == "application/json"
}

// preflight runs the three checks every handler performs before its own
// logic: services registered, auth, content-type. It returns a non-nil
// response when a check failed.
func preflight(req httpproto.Request, m httpserver.ServiceMap) (*docstore.Store, *userpool.Pool, *httpproto.Response) {
	store, users, ok := services(m)
	if !ok {
		resp := internalError()
		return nil, nil, &resp
	}
	if !accessPermitted(req, users) {
		resp := unauthorized()
		return nil, nil, &resp
	}
	if !contentTypeOK(req) {
		resp := badRequest()
		return nil, nil, &resp
	}
	return store, users, nil
}

// Insert handles POST /insert.
func Insert(req httpproto.Request, m httpserver.ServiceMap) httpproto.Response {
	store, _, failure := preflight(req, m)
	if failure != nil {
		return *failure
	}
	doc, err := value.ParseDocument(string(req.Body))
	if err != nil {
		return badRequest()
	}
	id, err := store.Insert(doc)
	if err != nil {
		return internalError()
	}
	return jsonResponse(200, "OK", []byte(value.Emit(value.Object(map[string]value.Value{
		"success": value.Bool(true),
		"id":      value.String(id),
	}))))
}

// Erase handles POST /erase.
func Erase(req httpproto.Request, m httpserver.ServiceMap) httpproto.Response {
	store, _, failure := preflight(req, m)
	if failure != nil {
		return *failure
	}
	body, err := value.ParseDocument(string(req.Body))
	if err != nil {
		return badRequest()
	}
	idValue, ok := body.Field("id")
	if !ok {
		return badRequest()
	}
	id, err := idValue.AsString()
	if err != nil {
		return badRequest()
	}
	if err := store.Erase(id); err != nil {
		return badRequest()
	}
	return jsonResponse(200, "OK", []byte(value.Emit(value.Object(map[string]value.Value{
		"success": value.Bool(true),
		"id":      value.String(id),
	}))))
}

// Find handles POST /find.
func Find(req httpproto.Request, m httpserver.ServiceMap) httpproto.Response {
	store, _, failure := preflight(req, m)
	if failure != nil {
		return *failure
	}
	body, err := value.ParseDocument(string(req.Body))
	if err != nil {
		return badRequest()
	}
	idValue, ok := body.Field("id")
	if !ok {
		return badRequest()
	}
	id, err := idValue.AsString()
	if err != nil {
		return badRequest()
	}

	fields := map[string]value.Value{
		"success": value.Bool(true),
		"id":      value.String(id),
	}
	doc, err := store.Find(id)
	if err != nil {
		fields["found"] = value.Bool(false)
	} else {
		fields["found"] = value.Bool(true)
		fields["document"] = doc
	}
	return jsonResponse(200, "OK", []byte(value.Emit(value.Object(fields))))
}

// Keys handles GET /keys.
func Keys(req httpproto.Request, m httpserver.ServiceMap) httpproto.Response {
	store, _, failure := preflight(req, m)
	if failure != nil {
		return *failure
	}
	keys := store.Keys()
	items := make([]value.Value, len(keys))
	for i, k := range keys {
		items[i] = value.String(k)
	}
	return jsonResponse(200, "OK", []byte(value.Emit(value.Object(map[string]value.Value{
		"keys": value.Array(items),
	}))))
}

// Image handles GET /image.
func Image(req httpproto.Request, m httpserver.ServiceMap) httpproto.Response {
	store, _, failure := preflight(req, m)
	if failure != nil {
		return *failure
	}
	return jsonResponse(200, "OK", []byte(value.Emit(store.Image())))
}
