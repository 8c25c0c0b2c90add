package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/UkralStul/content-service/internal/domain"
	"github.com/UkralStul/content-service/internal/posts"
	"github.com/go-chi/chi/v5"
)

const multipartMemory = 8 << 20

type commentRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// postForm - поля поста из multipart-формы или JSON. nil - поле не передано.
type postForm struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Image   string  `json:"-"`
}

func (f postForm) createInput() posts.CreateInput {
	in := posts.CreateInput{Image: f.Image}
	if f.Title != nil {
		in.Title = *f.Title
	}
	if f.Content != nil {
		in.Content = *f.Content
	}
	return in
}

func (f postForm) patch() posts.PostPatch {
	p := posts.PostPatch{Title: f.Title, Content: f.Content}
	if f.Image != "" {
		image := f.Image
		p.Image = &image
	}
	return p
}

// readPostForm разбирает тело запроса. Загруженное изображение сразу сохраняется
// в медиахранилище; дальше за его судьбу отвечает posts.Repository.
func (s *Server) readPostForm(w http.ResponseWriter, r *http.Request) (postForm, error) {
	var form postForm
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := decodeJSON(w, r, &form); err != nil {
			return postForm{}, err
		}
		return form, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return postForm{}, domain.Validationf("upload exceeds %d bytes", s.MaxUploadBytes)
		}
		return postForm{}, domain.Validationf("invalid multipart form")
	}
	defer r.MultipartForm.RemoveAll()

	form.Title = formValue(r, "title")
	form.Content = formValue(r, "content")

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return form, nil
	case err != nil:
		return postForm{}, domain.Validationf("invalid image upload")
	}
	defer file.Close()

	if s.Media == nil {
		return postForm{}, domain.Validationf("image uploads are disabled")
	}
	name, err := s.Media.Save(file, header.Filename)
	if err != nil {
		return postForm{}, domain.Internal("failed to store image", err)
	}
	form.Image = name
	return form, nil
}

func formValue(r *http.Request, key string) *string {
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	mine := false
	if raw := r.URL.Query().Get("mine"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, domain.Validationf("mine must be true or false"))
			return
		}
		mine = v
	}

	list, err := s.Posts.List(r.Context(), posts.ListFilter{
		MineOnly:  mine,
		Requester: optionalIdentity(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.Posts.Get(r.Context(), chi.URLParam(r, "id"), optionalIdentity(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	form, err := s.readPostForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.Posts.Create(r.Context(), id.UserID, form.createInput())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	form, err := s.readPostForm(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	post, err := s.Posts.Update(r.Context(), chi.URLParam(r, "id"), id, form.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.Posts.Delete(r.Context(), chi.URLParam(r, "id"), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	state, err := s.Engine.ToggleLike(r.Context(), chi.URLParam(r, "id"), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.Engine.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	comments, err := s.Engine.AddComment(r.Context(), chi.URLParam(r, "id"), id.UserID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comments)
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	err := s.Engine.DeleteComment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "commentId"), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true, Message: "comment deleted"})
}
