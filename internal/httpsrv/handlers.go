package httpsrv

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plags-org/judge/api"
	"github.com/plags-org/judge/internal/httpjson"
	"github.com/plags-org/judge/internal/judgesrvc"
	"github.com/plags-org/judge/internal/srvcerror"
)

// submissions and bundles are small; 64 MiB of form memory covers both
const maxMultipartMemory = 64 << 20

func refFromForm(get func(string) string) api.ExerciseRef {
	return api.ExerciseRef{
		Agency:      get(api.FieldAgency),
		Department:  get(api.FieldDepartment),
		Name:        get(api.FieldExercise),
		Version:     get(api.FieldVersion),
		ContentHash: get(api.FieldContentHash),
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpjson.HandleError(s.logger, w,
			srvcerror.ErrBadRequest("expected a multipart form").SetDebug(err))
		return
	}

	file, header, err := r.FormFile(api.FieldFile)
	if err != nil {
		httpjson.HandleError(s.logger, w,
			srvcerror.ErrBadRequest("submission file is required").SetDebug(err))
		return
	}
	defer file.Close()

	resp, err := s.srvc.Submit(r.Context(), judgesrvc.SubmitRequest{
		Exercise:     refFromForm(r.FormValue),
		SubmissionID: r.FormValue(api.FieldSubmissionID),
		Token:        r.FormValue(api.FieldToken),
		Filename:     header.Filename,
		File:         file,
	})
	if err != nil {
		httpjson.HandleError(s.logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, resp)
}

func (s *Server) exists(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := s.srvc.Exists(r.Context(), refFromForm(query.Get))
	if err != nil {
		httpjson.HandleError(s.logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, resp)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		httpjson.HandleError(s.logger, w,
			srvcerror.ErrBadRequest("expected a multipart form").SetDebug(err))
		return
	}

	file, _, err := r.FormFile(api.FieldFile)
	if err != nil {
		httpjson.HandleError(s.logger, w,
			srvcerror.ErrBadRequest("bundle archive is required").SetDebug(err))
		return
	}
	defer file.Close()

	zipData, err := io.ReadAll(file)
	if err != nil {
		httpjson.HandleError(s.logger, w,
			srvcerror.ErrBadRequest("failed to read bundle archive").SetDebug(err))
		return
	}

	resp, err := s.srvc.Upload(r.Context(),
		refFromForm(r.FormValue), r.FormValue(api.FieldToken), zipData)
	if err != nil {
		httpjson.HandleError(s.logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, resp)
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	resp, err := s.srvc.Result(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		httpjson.HandleError(s.logger, w, err)
		return
	}
	httpjson.WriteSuccessJson(w, resp)
}
