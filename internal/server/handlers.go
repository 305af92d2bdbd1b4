package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/wikora/wikora/internal/ftindex"
	"github.com/wikora/wikora/internal/ident"
	"github.com/wikora/wikora/internal/store"
	"github.com/wikora/wikora/internal/types"
)

// queryBool parses a boolean query parameter; absence is false.
func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, types.E(types.KindBadInput, "query parameter %s must be boolean", name)
	}
	return v, nil
}

// queryRev parses a revision number query parameter; absence is zero.
func queryRev(c echo.Context, name string) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, types.E(types.KindBadInput, "query parameter %s must be a positive revision", name)
	}
	return v, nil
}

// idParam validates the :id path parameter shape.
func idParam(c echo.Context) (string, error) {
	id := c.Param("id")
	if !ident.Valid(id) {
		return "", types.E(types.KindBadInput, "malformed id %q", id)
	}
	return id, nil
}

func userName(c echo.Context) string {
	if u := currentUser(c); u != nil {
		return u.Name
	}
	return ""
}

// --- Pages ---

func (s *Server) handleCreateDraft(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return types.E(types.KindBadInput, "missing path parameter")
	}
	draft, lock, err := s.svc.CreateDraft(c.Request().Context(), path, userName(c))
	if err != nil {
		return err
	}
	setLockHeader(c, lock)
	return c.JSON(http.StatusCreated, map[string]string{
		"page_id": draft.PageID,
		"path":    draft.Path,
	})
}

func (s *Server) handleListPages(c echo.Context) error {
	forward := c.QueryParam("forward")
	rewind := c.QueryParam("rewind")
	if forward != "" && rewind != "" {
		return types.E(types.KindBadInput, "forward and rewind are mutually exclusive")
	}
	withDeleted, err := queryBool(c, "with_deleted")
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return types.E(types.KindBadInput, "limit must be a non-negative integer")
		}
	}
	dir := store.Forward
	cursor := forward
	if rewind != "" {
		dir = store.Rewind
		cursor = rewind
	}
	res, err := s.svc.Store().List(c.QueryParam("prefix"), cursor, dir, limit, withDeleted)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleDeletedCandidates(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return types.E(types.KindBadInput, "missing path parameter")
	}
	metas, err := s.svc.Store().DeletedCandidates(path)
	if err != nil {
		return err
	}
	if metas == nil {
		metas = []types.PageMeta{}
	}
	return c.JSON(http.StatusOK, metas)
}

func (s *Server) handleMeta(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	meta, err := s.svc.Store().Meta(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

func (s *Server) handleGetSource(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	rev, err := queryRev(c, "rev")
	if err != nil {
		return err
	}
	meta, err := s.svc.Store().Meta(id)
	if err != nil {
		return err
	}
	if meta.Deleted {
		return types.E(types.KindGone, "page %s is deleted", id)
	}
	src, err := s.svc.Store().Source(id, rev)
	if err != nil {
		return err
	}
	if rev != 0 {
		// Pinned revisions never change; let clients cache them forever.
		c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		c.Response().Header().Set("ETag", fmt.Sprintf("%q", id+":"+strconv.FormatUint(rev, 10)))
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(src.Source))
}

func (s *Server) handlePutSource(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	amend, err := queryBool(c, "amend")
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return types.Wrap(types.KindInternal, err, "reading request body")
	}
	_, err = s.svc.Write(c.Request().Context(), id, string(body), userName(c), amend, lockProof(c))
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHistory(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	revs, err := s.svc.Store().History(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revs)
}

func (s *Server) handleRevisionOp(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	rollbackTo, err := queryRev(c, "rollback_to")
	if err != nil {
		return err
	}
	keepFrom, err := queryRev(c, "keep_from")
	if err != nil {
		return err
	}
	switch {
	case rollbackTo != 0 && keepFrom != 0:
		return types.E(types.KindBadInput, "rollback_to and keep_from are mutually exclusive")
	case rollbackTo != 0:
		_, err = s.svc.Rollback(c.Request().Context(), id, rollbackTo)
	case keepFrom != 0:
		err = s.svc.Compact(c.Request().Context(), id, keepFrom)
	default:
		return types.E(types.KindBadInput, "one of rollback_to or keep_from is required")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePathOp(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	renameTo := c.QueryParam("rename_to")
	restoreTo := c.QueryParam("restore_to")
	recursive, err := queryBool(c, "recursive")
	if err != nil {
		return err
	}
	switch {
	case renameTo != "" && restoreTo != "":
		return types.E(types.KindBadInput, "rename_to and restore_to are mutually exclusive")
	case renameTo != "":
		err = s.svc.Rename(c.Request().Context(), id, renameTo, recursive)
	case restoreTo != "":
		err = s.svc.Restore(c.Request().Context(), id, restoreTo, recursive)
	default:
		return types.E(types.KindBadInput, "one of rename_to or restore_to is required")
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleParent(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	recursive, err := queryBool(c, "recursive")
	if err != nil {
		return err
	}
	meta, err := s.svc.Store().Parent(id, recursive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

func (s *Server) handleDeletePage(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	recursive, err := queryBool(c, "recursive")
	if err != nil {
		return err
	}
	hard, err := queryBool(c, "hard")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if hard {
		if err := requireAdmin(c); err != nil {
			return err
		}
		err = s.svc.HardDelete(ctx, id)
	} else {
		err = s.svc.SoftDelete(ctx, id, recursive)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Locks ---

func (s *Server) handleAcquire(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	lock, err := s.svc.Acquire(c.Request().Context(), id, userName(c))
	if err != nil {
		return err
	}
	setLockHeader(c, lock)
	return c.JSON(http.StatusOK, map[string]string{
		"token":  lock.Token,
		"expire": lock.Expire,
	})
}

func (s *Server) handleExtend(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	lock, err := s.svc.Extend(c.Request().Context(), id, lockProof(c), userName(c))
	if err != nil {
		return err
	}
	setLockHeader(c, lock)
	return c.JSON(http.StatusOK, map[string]string{
		"token":  lock.Token,
		"expire": lock.Expire,
	})
}

func (s *Server) handleRelease(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Release(c.Request().Context(), id, lockProof(c), userName(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Assets ---

func (s *Server) handleUpload(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	name := c.Param("name")
	req := c.Request()
	if req.ContentLength < 0 {
		return types.E(types.KindLengthRequired, "Content-Length is required")
	}
	if req.ContentLength > store.MaxAssetSize {
		return types.E(types.KindTooLarge, "asset exceeds %d bytes", store.MaxAssetSize)
	}
	mime := req.Header.Get(echo.HeaderContentType)
	if mime == "" {
		mime = "application/octet-stream"
	}
	info, err := s.svc.Upload(req.Context(), id, name, mime, req.Body, userName(c), lockProof(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListPageAssets(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	assets, err := s.svc.Store().PageAssets(id)
	if err != nil {
		return err
	}
	if assets == nil {
		assets = []types.AssetInfo{}
	}
	return c.JSON(http.StatusOK, assets)
}

func (s *Server) handleResolveAssetName(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	assetID, err := s.svc.Store().ResolveAssetName(id, c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"asset_id": assetID})
}

func (s *Server) handleAssetMeta(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	info, err := s.svc.Store().AssetMeta(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleAssetData(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	info, body, err := s.svc.OpenAsset(id)
	if err != nil {
		return err
	}
	defer body.Close()
	if info.Deleted {
		return types.E(types.KindGone, "asset %s is deleted", id)
	}
	return c.Stream(http.StatusOK, info.MIME, body)
}

func (s *Server) handleDeleteAsset(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	hard, err := queryBool(c, "hard")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if hard {
		if err := requireAdmin(c); err != nil {
			return err
		}
		err = s.svc.HardDeleteAsset(ctx, id)
	} else {
		err = s.svc.SoftDeleteAsset(ctx, id)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReassignAsset(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	newOwner := c.QueryParam("page")
	if !ident.Valid(newOwner) {
		return types.E(types.KindBadInput, "malformed page id %q", newOwner)
	}
	if err := s.svc.ReassignAsset(c.Request().Context(), id, newOwner); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Search & templates ---

func (s *Server) handleSearch(c echo.Context) error {
	expr := c.QueryParam("q")
	if expr == "" {
		return types.E(types.KindBadInput, "missing q parameter")
	}
	withDeleted, err := queryBool(c, "with_deleted")
	if err != nil {
		return err
	}
	allRevision, err := queryBool(c, "all_revision")
	if err != nil {
		return err
	}
	var targets []string
	if raw := c.QueryParam("targets"); raw != "" {
		targets = strings.Split(raw, ",")
	}
	hits, err := s.svc.Search(ftindex.Request{
		Expression:  expr,
		Targets:     targets,
		WithDeleted: withDeleted,
		AllRevision: allRevision,
	})
	if err != nil {
		return err
	}
	if hits == nil {
		hits = []types.SearchHit{}
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleTemplates(c echo.Context) error {
	metas, err := s.svc.Templates()
	if err != nil {
		return err
	}
	if metas == nil {
		metas = []types.PageMeta{}
	}
	return c.JSON(http.StatusOK, metas)
}

// --- Users ---

type userRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Admin       bool   `json:"admin"`
}

// userView strips the credential hash from responses.
func userView(u *types.User) map[string]interface{} {
	return map[string]interface{}{
		"name":         u.Name,
		"display_name": u.DisplayName,
		"admin":        u.Admin,
		"created_at":   u.CreatedAt,
	}
}

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.svc.Store().Users()
	if err != nil {
		return err
	}
	out := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		out = append(out, userView(&users[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleAddUser(c echo.Context) error {
	// The first user of an empty wiki registers unauthenticated and
	// becomes an administrator; afterwards only admins add users.
	setup := currentUser(c) == nil
	if !setup {
		if err := requireAdmin(c); err != nil {
			return err
		}
	}
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return types.E(types.KindBadInput, "malformed user body")
	}
	if setup {
		req.Admin = true
	}
	user, err := s.svc.AddUser(c.Request().Context(), req.Name, req.DisplayName, req.Password, req.Admin)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, userView(user))
}

func (s *Server) handleEditUser(c echo.Context) error {
	name := c.Param("name")
	caller := currentUser(c)
	if caller == nil || (!caller.Admin && caller.Name != name) {
		return types.E(types.KindForbidden, "cannot edit another user")
	}
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return types.E(types.KindBadInput, "malformed user body")
	}
	var admin *bool
	if caller.Admin {
		admin = &req.Admin
	}
	user, err := s.svc.Store().EditUser(name, req.DisplayName, req.Password, admin)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(user))
}

func (s *Server) handleDeleteUser(c echo.Context) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if err := s.svc.Store().DeleteUser(c.Param("name")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
