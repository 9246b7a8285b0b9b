package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/packhub/internal/audit/domain"
	"github.com/smallbiznis/packhub/internal/dependency"
	"github.com/smallbiznis/packhub/internal/observability/logger"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
	"github.com/smallbiznis/packhub/internal/publish"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for the metadata part and multipart framing
// on top of the tarball limit.
const multipartOverhead = 1 << 20

type graphResponse struct {
	*dependency.Graph
	Cycle   []string `json:"cycle,omitempty"`
	Diagram string   `json:"diagram"`
}

func (s *Server) PublishPack(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	maxBytes := s.publishSvc.MaxTarballBytes()
	if c.Request.ContentLength > maxBytes+multipartOverhead {
		AbortWithError(c, publish.ErrTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	tarball, header, err := c.Request.FormFile("tarball")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			AbortWithError(c, publish.ErrTooLarge)
		case errors.Is(err, http.ErrMissingFile):
			AbortWithError(c, publish.ErrMissingTarball)
		default:
			AbortWithError(c, invalidRequestError())
		}
		return
	}
	defer tarball.Close()

	metadata, err := readMetadataPart(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.publishSvc.Publish(c.Request.Context(), publish.Request{
		Actor:        actor,
		Metadata:     metadata,
		Tarball:      tarball,
		DeclaredSize: header.Size,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("pack", result.Name)
	s.recordAudit(c, auditdomain.ActionPackPublish, auditdomain.TargetPack, result.Name, map[string]any{
		"version":   result.Version,
		"integrity": result.Integrity,
		"size":      result.Size,
	})
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

// readMetadataPart accepts metadata as a form field or as an uploaded file.
func readMetadataPart(c *gin.Context) ([]byte, error) {
	if value := strings.TrimSpace(c.Request.FormValue("metadata")); value != "" {
		return []byte(value), nil
	}
	file, _, err := c.Request.FormFile("metadata")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, publish.ErrMissingMetadata
		}
		return nil, invalidRequestError()
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, multipartOverhead))
	if err != nil {
		return nil, invalidRequestError()
	}
	return raw, nil
}

func (s *Server) ListPacks(c *gin.Context) {
	var req packdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.packSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Items, "page_info": resp.PageInfo})
}

func (s *Server) GetPack(c *gin.Context) {
	name := packName(c)
	resp, err := s.packSvc.Get(c.Request.Context(), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePack(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req packdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.packSvc.Update(c.Request.Context(), actor, packName(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionPackUpdate, auditdomain.TargetPack, resp.Name, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeletePack(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	name := packName(c)
	if err := s.packSvc.Delete(c.Request.Context(), actor, name); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionPackDelete, auditdomain.TargetPack, name, nil)

	c.Status(http.StatusNoContent)
}

func (s *Server) ListVersions(c *gin.Context) {
	name := packName(c)
	if _, err := s.packSvc.Get(c.Request.Context(), name); err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.versionSvc.List(c.Request.Context(), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetVersion(c *gin.Context) {
	item, err := s.versionSvc.Get(c.Request.Context(), packName(c), c.Param("version"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DownloadTarball(c *gin.Context) {
	ctx := c.Request.Context()
	name := packName(c)
	item, err := s.versionSvc.Get(ctx, name, c.Param("version"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := s.blobs.Get(ctx, item.PackName, item.Version)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer body.Close()

	if err := s.packSvc.RecordDownload(ctx, item.PackName); err != nil {
		logger.WithPack(logger.FromContext(ctx), item.PackName, item.Version).
			Warn("download counter update failed", zap.Error(err))
	}

	c.Set("pack", item.PackName)
	c.DataFromReader(http.StatusOK, item.Size, "application/gzip", body, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, tarballFilename(item.PackName, item.Version)),
		"X-Pack-Integrity":    item.Integrity,
	})
}

func (s *Server) GetDependencyGraph(c *gin.Context) {
	depth, err := parseOptionalInt64(c.Query("depth"))
	if err != nil {
		AbortWithError(c, newValidationError("depth", "invalid_depth", "depth must be an integer"))
		return
	}
	maxDepth := dependency.DefaultMaxDepth
	if depth != nil {
		maxDepth = int(*depth)
	}

	graph, err := s.dependencySvc.BuildGraph(c.Request.Context(), packName(c), maxDepth)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if graph == nil {
		AbortWithError(c, packdomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": graphResponse{
		Graph:   graph,
		Cycle:   dependency.DetectCycles(graph),
		Diagram: dependency.ToDiagram(graph),
	}})
}

func (s *Server) ListDependents(c *gin.Context) {
	name := packName(c)
	if _, err := s.packSvc.Get(c.Request.Context(), name); err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.dependencySvc.ReverseDependencies(c.Request.Context(), name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func packName(c *gin.Context) string {
	return strings.TrimSpace(c.Param("name"))
}

// tarballFilename flattens scoped names, e.g. @acme/tools 1.0.0 becomes
// acme-tools-1.0.0.tgz.
func tarballFilename(name, version string) string {
	flat := strings.ReplaceAll(strings.TrimPrefix(name, "@"), "/", "-")
	return flat + "-" + version + ".tgz"
}
