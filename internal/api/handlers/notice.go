package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cms-dispatch/internal/api/dto"
	"cms-dispatch/internal/api/middleware"
	"cms-dispatch/internal/api/utils"
	"cms-dispatch/internal/dispatch"
	"cms-dispatch/internal/files"
)

const (
	rptNotice         = "NOTICE"
	rptNoticeTran     = "NOTICETRAN"
	rptNoticeFile     = "NOTICEFILE"
	rptNoticeFileTran = "NOTICEFILETRAN"
	rptNoticeFileDown = "NOTICEFILEDOWN"

	jobGet = "GET"
	jobSet = "SET"

	gubunDelete      = "D"
	uploadFormField  = "files"
	multipartMemory  = 32 << 20
	multipartOverrun = 1 << 20
)

type NoticeDeps struct {
	Plain         PlainDispatcher
	File          FileDispatcher
	Uploads       files.Limits
	MaxResultSize int
	Log           *zap.Logger
}

func NewNoticeListHandler(deps NoticeDeps) http.HandlerFunc {
	return newNoticeQueryHandler(deps, false)
}

func NewNoticeFileListHandler(deps NoticeDeps) http.HandlerFunc {
	return newNoticeQueryHandler(deps, true)
}

func newNoticeQueryHandler(deps NoticeDeps, fileTrack bool) http.HandlerFunc {
	log := orNop(deps.Log)
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, jsonMaxBodyBytes)
		defer r.Body.Close()

		body, err := readParams(r.Body)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body", "INVALID_JSON")
			return
		}

		var rows dispatch.ResultSet
		if fileTrack {
			params := make([]dispatch.Param, len(body.Params))
			for i, p := range body.Params {
				params[i] = dispatch.Text(p)
			}
			rows, err = deps.File.Dispatch(r.Context(), fileRequest(r, rptNoticeFile, jobGet, params))
		} else {
			rows, err = deps.Plain.Dispatch(r.Context(), plainRequest(r, rptNotice, jobGet, body.Params))
		}
		if err != nil {
			writeDispatchError(w, log, err)
			return
		}
		if len(rows) == 0 {
			utils.WriteResult(w, nil, utils.CodeFail, noResultsMessage)
			return
		}
		utils.WriteOK(w, rows)
	}
}

func NewNoticeSaveHandler(deps NoticeDeps) http.HandlerFunc {
	return newNoticeTranHandler(deps, true)
}

func NewNoticeDeleteHandler(deps NoticeDeps) http.HandlerFunc {
	return newNoticeTranHandler(deps, false)
}

func newNoticeTranHandler(deps NoticeDeps, save bool) http.HandlerFunc {
	log := orNop(deps.Log)
	verb := "deleted"
	if save {
		verb = "saved"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.NoticeTranRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if blank(req.Gubun) || blank(req.NoticeID) {
			utils.WriteResult(w, nil, utils.CodeFail, "gubun and noticeId are required.")
			return
		}
		if save && (blank(req.Title) || blank(req.Content)) {
			utils.WriteResult(w, nil, utils.CodeFail, "title and content are required.")
			return
		}

		empNo := middleware.EmpNo(r.Context())
		params := []string{req.Gubun, req.NoticeID, empNo, req.Title, req.Content}
		rows, err := deps.Plain.Dispatch(r.Context(), plainRequest(r, rptNoticeTran, jobSet, params))
		if err != nil {
			writeDispatchError(w, log, err)
			return
		}
		if len(rows) == 0 {
			utils.WriteResult(w, nil, utils.CodeFail, "Notice was not "+verb+": no result returned.")
			return
		}

		id, ok := noticeID(rows[0])
		if !ok {
			log.Error("notice transaction returned no NOTICEID", zap.String("gubun", req.Gubun))
			utils.WriteResult(w, nil, utils.CodeFail, "Notice was not "+verb+": NOTICEID missing.")
			return
		}
		utils.WriteOK(w, dto.NoticeTranResponse{
			Success:  true,
			Message:  "Notice " + verb + " successfully.",
			NoticeID: id,
		})
	}
}

func noticeID(row dispatch.Row) (int64, bool) {
	v, ok := row.Get("NOTICEID")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(v)), 10, 64)
	if err != nil || id == -1 {
		return 0, false
	}
	return id, true
}

// NewNoticeFileSaveHandler stores each multipart file with its own dispatch.
func NewNoticeFileSaveHandler(deps NoticeDeps) http.HandlerFunc {
	log := orNop(deps.Log)
	bodyLimit := int64(multipartOverrun)
	if deps.Uploads.MaxFiles > 0 && deps.Uploads.MaxFileSize > 0 {
		bodyLimit += int64(deps.Uploads.MaxFiles) * deps.Uploads.MaxFileSize
	}

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				utils.WriteError(w, http.StatusRequestEntityTooLarge, "Upload too large", "SIZE_LIMIT_EXCEEDED")
				return
			}
			utils.WriteError(w, http.StatusBadRequest, "Invalid multipart body", "INVALID_MULTIPART")
			return
		}
		defer r.MultipartForm.RemoveAll()

		gubun := r.FormValue("gubun")
		fileID := r.FormValue("fileId")
		noticeID := r.FormValue("noticeId")
		if blank(gubun) || blank(noticeID) {
			utils.WriteResult(w, nil, utils.CodeFail, "gubun and noticeId are required.")
			return
		}

		uploads, skipped, err := files.ReadUploads(r.MultipartForm, uploadFormField, deps.Uploads)
		switch {
		case errors.Is(err, files.ErrNoFiles):
			utils.WriteResult(w, []dispatch.FileOutcome{}, utils.CodeOK, "No files provided.")
			return
		case errors.Is(err, files.ErrTooManyFiles):
			utils.WriteResult(w, nil, utils.CodeFail, fmt.Sprintf("Too many files, maximum %d allowed.", deps.Uploads.MaxFiles))
			return
		case errors.Is(err, files.ErrFileTooLarge):
			utils.WriteError(w, http.StatusRequestEntityTooLarge, err.Error(), "SIZE_LIMIT_EXCEEDED")
			return
		case err != nil:
			log.Error("reading upload failed", zap.Error(err))
			utils.WriteError(w, http.StatusBadRequest, "Invalid multipart body", "INVALID_MULTIPART")
			return
		}
		if skipped > 0 {
			log.Warn("skipping files with empty name", zap.Int("count", skipped))
		}

		empNo := middleware.EmpNo(r.Context())
		result := make([]dispatch.FileOutcome, 0, len(uploads))
		for _, up := range uploads {
			params := []dispatch.Param{
				dispatch.Text(gubun),
				dispatch.Text(fileID),
				dispatch.Text(noticeID),
				dispatch.Text(empNo),
				dispatch.Text(up.Name),
				dispatch.Text(up.Type),
				dispatch.Text(strconv.FormatInt(up.Size, 10)),
				dispatch.Binary(up.Data),
			}
			out, err := deps.File.Upload(r.Context(), fileRequest(r, rptNoticeFileTran, jobSet, params))
			if err != nil {
				writeDispatchError(w, log, err)
				return
			}
			result = append(result, out...)

			if deps.MaxResultSize > 0 && len(result) > deps.MaxResultSize {
				log.Warn("upload result size exceeds limit, truncating", zap.Int("limit", deps.MaxResultSize))
				break
			}
		}

		if len(result) == 0 {
			utils.WriteResult(w, nil, utils.CodeFail, "No files were processed successfully.")
			return
		}
		utils.WriteOK(w, result)
	}
}

func NewNoticeFileDeleteHandler(deps NoticeDeps) http.HandlerFunc {
	log := orNop(deps.Log)
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.NoticeFileDeleteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if blank(req.Gubun) || blank(req.NoticeID) {
			utils.WriteResult(w, nil, utils.CodeFail, "gubun and noticeId are required.")
			return
		}
		if req.Gubun != gubunDelete {
			utils.WriteResult(w, nil, utils.CodeFail, "Invalid gubun value for deletion. Must be 'D'.")
			return
		}

		params := []dispatch.Param{
			dispatch.Text(req.Gubun),
			dispatch.Text(req.FileID),
			dispatch.Text(req.NoticeID),
			dispatch.Text(middleware.EmpNo(r.Context())),
			dispatch.Text(""),
			dispatch.Text(""),
			dispatch.Text("0"),
			dispatch.Binary(nil),
		}
		out, err := deps.File.Delete(r.Context(), fileRequest(r, rptNoticeFileTran, jobSet, params))
		if err != nil {
			writeDispatchError(w, log, err)
			return
		}
		if len(out) == 0 {
			utils.WriteResult(w, nil, utils.CodeFail, "File deletion failed: no results returned.")
			return
		}
		utils.WriteResult(w, out, utils.CodeOK, "File deleted successfully.")
	}
}

// NewNoticeFileDownloadHandler streams FILEDATA of the first returned row.
func NewNoticeFileDownloadHandler(deps NoticeDeps) http.HandlerFunc {
	log := orNop(deps.Log)
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, jsonMaxBodyBytes)
		defer r.Body.Close()

		body, err := readParams(r.Body)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid JSON body", "INVALID_JSON")
			return
		}
		params := make([]dispatch.Param, len(body.Params))
		for i, p := range body.Params {
			params[i] = dispatch.Text(p)
		}

		rows, err := deps.File.Retrieve(r.Context(), fileRequest(r, rptNoticeFileDown, jobGet, params))
		if err != nil {
			writeDispatchError(w, log, err)
			return
		}
		if len(rows) == 0 {
			utils.WriteError(w, http.StatusNotFound, "File not found", "FILE_NOT_FOUND")
			return
		}

		data, ok := rows[0].Reader(dispatch.FileDataColumn)
		if !ok {
			utils.WriteError(w, http.StatusNotFound, "File not found", "FILE_NOT_FOUND")
			return
		}
		name, err := files.CleanName(rows[0].String("FILENM", ""))
		if err != nil {
			name = "download"
		}

		ctype := mime.TypeByExtension(filepath.Ext(name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ctype)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, data); err != nil {
			log.Warn("streaming file failed", zap.String("file", name), zap.Error(err))
		}
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
