// Package api exposes the quiz, the diary and operator actions over HTTP and
// pushes live quiz views over WebSocket.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/victornm/familytrip/internal/backfill"
	"github.com/victornm/familytrip/internal/diary"
	"github.com/victornm/familytrip/internal/domain"
	"github.com/victornm/familytrip/internal/errors"
	"github.com/victornm/familytrip/internal/quiz"
)

type Engine interface {
	Submit(ctx context.Context, req quiz.SubmitAnswerRequest) (*quiz.SubmitAnswerResponse, error)
	Question(questionID int) (domain.QuestionAggregate, bool)
	IsQuestionFullySolved(questionID int) bool
	IsQuizComplete() bool
	Scores() []domain.ParticipantScore
	View() domain.QuizView
}

type Channel interface {
	Watch() (<-chan domain.QuizView, func())
	Broadcast()
}

type Diary interface {
	CreatePost(ctx context.Context, req diary.CreatePostRequest) (*diary.CreatePostResponse, error)
	ListPosts(ctx context.Context, req diary.ListPostsRequest) (*diary.ListPostsResponse, error)
}

type Backfill interface {
	Run(ctx context.Context, req backfill.RunRequest) (*backfill.Report, error)
}

type Config struct {
	Roster   domain.Roster
	Engine   Engine
	Channel  Channel
	Diary    Diary
	Backfill Backfill
	// AdminPINHash is the bcrypt hash of the operator PIN. Empty disables
	// operator actions over HTTP.
	AdminPINHash string
	// AllowedOrigins restricts WebSocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

type API struct {
	roster   domain.Roster
	engine   Engine
	channel  Channel
	diary    Diary
	backfill Backfill
	pinHash  []byte
	upgrader websocket.Upgrader
}

func New(c Config) *API {
	return &API{
		roster:   c.Roster,
		engine:   c.Engine,
		channel:  c.Channel,
		diary:    c.Diary,
		backfill: c.Backfill,
		pinHash:  []byte(c.AdminPINHash),
		upgrader: newUpgrader(c.AllowedOrigins),
	}
}

// Register mounts every route on r.
func (a *API) Register(r gin.IRouter) {
	g := r.Group("/api")
	g.GET("/roster", a.getRoster)
	g.GET("/quiz", a.getQuiz)
	g.GET("/quiz/questions/:id", a.getQuestion)
	g.POST("/quiz/answers", a.submitAnswer)
	g.GET("/quiz/scores", a.getScores)
	g.GET("/diary", a.listPosts)
	g.POST("/diary", a.createPost)
	g.POST("/admin/backfill", a.runBackfill)

	r.GET("/ws", a.serveWS)
}

func (a *API) getRoster(c *gin.Context) {
	c.JSON(http.StatusOK, a.roster)
}

func (a *API) getQuiz(c *gin.Context) {
	c.JSON(http.StatusOK, a.engine.View())
}

func (a *API) getQuestion(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		renderError(c, errors.Validation("invalid question id %q", c.Param("id")))
		return
	}

	agg, ok := a.engine.Question(id)
	if !ok {
		renderError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("question %d not found", id)))
		return
	}

	c.JSON(http.StatusOK, agg)
}

type submitAnswerRequest struct {
	QuestionID  int    `json:"questionId"`
	FamilyIndex int    `json:"familyIndex"`
	AnswerKey   string `json:"answerKey"`
}

type submitAnswerResponse struct {
	Record       domain.AnswerRecord `json:"record"`
	Status       string              `json:"status"`
	FullySolved  bool                `json:"fullySolved"`
	QuizComplete bool                `json:"quizComplete"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.Validation("invalid request body: %v", err))
		return
	}

	resp, err := a.submit(c.Request.Context(), req)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) submit(ctx context.Context, req submitAnswerRequest) (*submitAnswerResponse, error) {
	resp, err := a.engine.Submit(ctx, quiz.SubmitAnswerRequest{
		QuestionID:  req.QuestionID,
		FamilyIndex: req.FamilyIndex,
		AnswerKey:   req.AnswerKey,
	})
	if err != nil {
		return nil, err
	}

	a.channel.Broadcast()

	return &submitAnswerResponse{
		Record:       resp.Record,
		Status:       resp.Status.String(),
		FullySolved:  a.engine.IsQuestionFullySolved(req.QuestionID),
		QuizComplete: a.engine.IsQuizComplete(),
	}, nil
}

func (a *API) getScores(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scores": a.engine.Scores()})
}

func (a *API) listPosts(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			renderError(c, errors.Validation("invalid limit %q", v))
			return
		}
		limit = n
	}

	resp, err := a.diary.ListPosts(c.Request.Context(), diary.ListPostsRequest{Limit: limit})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": resp.Posts})
}

type createPostRequest struct {
	FamilyIndex int           `json:"familyIndex"`
	Content     string        `json:"content"`
	Emoji       string        `json:"emoji"`
	Media       *domain.Media `json:"media"`
}

func (a *API) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.Validation("invalid request body: %v", err))
		return
	}

	resp, err := a.diary.CreatePost(c.Request.Context(), diary.CreatePostRequest{
		FamilyIndex: req.FamilyIndex,
		Content:     req.Content,
		Emoji:       req.Emoji,
		Media:       req.Media,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp.Post)
}

type runBackfillRequest struct {
	Operator int    `json:"operator"`
	PIN      string `json:"pin"`
}

func (a *API) runBackfill(c *gin.Context) {
	var req runBackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.Validation("invalid request body: %v", err))
		return
	}

	if len(a.pinHash) == 0 {
		renderError(c, errors.New(errors.CodePermissionDenied, errors.WithMessagef("operator actions are disabled")))
		return
	}
	if err := bcrypt.CompareHashAndPassword(a.pinHash, []byte(req.PIN)); err != nil {
		renderError(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("wrong PIN")))
		return
	}

	report, err := a.backfill.Run(c.Request.Context(), backfill.RunRequest{Operator: req.Operator})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}
