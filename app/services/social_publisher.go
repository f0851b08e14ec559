package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/Tamamo-no-Mae/models"
	"github.com/amirphl/Tamamo-no-Mae/utils"
)

// PublishResult is the outcome of a social publish. Deferred results carry only a container id
// that a later publish pass turns into a post.
type PublishResult struct {
	PostID      string
	ContainerID string
	Deferred    bool
	ScheduledAt *time.Time
}

// SocialPublisher publishes campaign content to social platforms
type SocialPublisher interface {
	Publish(ctx context.Context, content *models.CampaignContent, conn *models.SocialConnection, scheduledAt *time.Time) (PublishResult, error)
	PublishContainer(ctx context.Context, conn *models.SocialConnection, containerID string) (string, error)
}

// GraphAPIConfig points the publisher at the Graph API
type GraphAPIConfig struct {
	BaseURL           string
	Version           string
	Timeout           time.Duration
	VideoPollInterval time.Duration
	VideoPollAttempts int
}

// GraphSocialPublisher implements SocialPublisher against the Instagram and Facebook Graph APIs
type GraphSocialPublisher struct {
	cfg    GraphAPIConfig
	client *http.Client
	media  MediaResolver
	now    func() time.Time
}

func NewGraphSocialPublisher(cfg GraphAPIConfig, media MediaResolver, client *http.Client) *GraphSocialPublisher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.VideoPollInterval <= 0 {
		cfg.VideoPollInterval = 3 * time.Second
	}
	if cfg.VideoPollAttempts <= 0 {
		cfg.VideoPollAttempts = 10
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if media == nil {
		media = NewStorageMediaResolver(nil, "", 0)
	}
	return &GraphSocialPublisher{cfg: cfg, client: client, media: media, now: utils.UTCNow}
}

// ValidateSocialContent checks platform preconditions without any network call
func ValidateSocialContent(content *models.CampaignContent) error {
	switch content.ContentType {
	case models.ContentTypeInstagramPost, models.ContentTypeInstagramStory:
		if utils.IsBlank(content.ImageURL) && utils.IsBlank(content.VideoURL) {
			return NewValidationError("MISSING_IMAGE", "Instagram requires an image or video")
		}
	case models.ContentTypeFacebookPost:
		if !content.HasText() && utils.IsBlank(content.ImageURL) {
			return NewValidationError("EMPTY_POST", "a Facebook post needs text or an image")
		}
	default:
		return NewValidationError("UNSUPPORTED_CONTENT", fmt.Sprintf("%s is not a social content type", content.ContentType))
	}
	return nil
}

// ValidateScheduleWindow rejects provider-side schedules outside 10 minutes to 75 days from now
func ValidateScheduleWindow(scheduledAt, now time.Time) error {
	lead := scheduledAt.Sub(now)
	if lead < utils.SocialScheduleMinLead {
		return NewValidationError("SCHEDULE_TOO_SOON", "scheduled publish time must be at least 10 minutes in the future")
	}
	if lead > utils.SocialScheduleMaxLead {
		return NewValidationError("SCHEDULE_TOO_FAR", "scheduled publish time must be within 75 days")
	}
	return nil
}

// BuildCaption appends space-joined, hash-prefixed hashtags after the body
func BuildCaption(body string, hashtags []string) string {
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		h = strings.TrimSpace(h)
		h = strings.TrimLeft(h, "#")
		if h == "" {
			continue
		}
		tags = append(tags, "#"+strings.ReplaceAll(h, " ", ""))
	}
	body = strings.TrimSpace(body)
	if len(tags) == 0 {
		return body
	}
	if body == "" {
		return strings.Join(tags, " ")
	}
	return body + "\n\n" + strings.Join(tags, " ")
}

func (p *GraphSocialPublisher) Publish(ctx context.Context, content *models.CampaignContent, conn *models.SocialConnection, scheduledAt *time.Time) (PublishResult, error) {
	if err := ValidateSocialContent(content); err != nil {
		return PublishResult{}, err
	}
	if scheduledAt != nil {
		if err := ValidateScheduleWindow(*scheduledAt, p.now()); err != nil {
			return PublishResult{}, err
		}
	}
	if err := p.checkConnection(conn); err != nil {
		return PublishResult{}, err
	}

	if content.ContentType == models.ContentTypeFacebookPost {
		return p.publishFacebook(ctx, content, conn, scheduledAt)
	}
	return p.publishInstagram(ctx, content, conn, scheduledAt)
}

func (p *GraphSocialPublisher) checkConnection(conn *models.SocialConnection) error {
	if conn == nil || conn.AccessToken == "" || conn.AccountID == "" {
		return NewConfigError("NO_SOCIAL_CONNECTION", "no connected account for this platform")
	}
	if conn.IsExpired(p.now()) {
		return NewPermanentError(ErrTokenExpired.Error(), "social access token has expired", 0, ErrTokenExpired)
	}
	return nil
}

func (p *GraphSocialPublisher) publishInstagram(ctx context.Context, content *models.CampaignContent, conn *models.SocialConnection, scheduledAt *time.Time) (PublishResult, error) {
	form := url.Values{}
	isVideo := utils.IsBlank(content.ImageURL)

	ref := utils.Deref(content.ImageURL)
	if isVideo {
		ref = utils.Deref(content.VideoURL)
	}
	mediaURL, err := p.media.ResolveURL(ctx, ref)
	if err != nil {
		return PublishResult{}, err
	}

	switch {
	case content.ContentType == models.ContentTypeInstagramStory:
		form.Set("media_type", "STORIES")
	case isVideo:
		form.Set("media_type", "REELS")
	}
	if isVideo {
		form.Set("video_url", mediaURL)
	} else {
		form.Set("image_url", mediaURL)
	}
	if content.ContentType == models.ContentTypeInstagramPost {
		form.Set("caption", BuildCaption(content.Body, content.Hashtags))
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := p.post(ctx, conn, conn.AccountID+"/media", form, &created); err != nil {
		return PublishResult{}, err
	}
	if created.ID == "" {
		return PublishResult{}, NewTransientError("EMPTY_CONTAINER_ID", "media container creation returned no id", 0, nil)
	}

	// Instagram has no native schedule parameter for these media types.
	if scheduledAt != nil {
		at := *scheduledAt
		return PublishResult{ContainerID: created.ID, Deferred: true, ScheduledAt: &at}, nil
	}

	if isVideo {
		if err := p.waitForContainer(ctx, conn, created.ID); err != nil {
			return PublishResult{ContainerID: created.ID}, err
		}
	}

	postID, err := p.PublishContainer(ctx, conn, created.ID)
	if err != nil {
		return PublishResult{ContainerID: created.ID}, err
	}
	return PublishResult{PostID: postID, ContainerID: created.ID}, nil
}

// PublishContainer publishes a previously created media container
func (p *GraphSocialPublisher) PublishContainer(ctx context.Context, conn *models.SocialConnection, containerID string) (string, error) {
	if err := p.checkConnection(conn); err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("creation_id", containerID)

	var published struct {
		ID string `json:"id"`
	}
	if err := p.post(ctx, conn, conn.AccountID+"/media_publish", form, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", NewTransientError("EMPTY_POST_ID", "media publish returned no id", 0, nil)
	}
	return published.ID, nil
}

func (p *GraphSocialPublisher) waitForContainer(ctx context.Context, conn *models.SocialConnection, containerID string) error {
	for i := 0; i < p.cfg.VideoPollAttempts; i++ {
		q := url.Values{}
		q.Set("fields", "status_code")
		q.Set("access_token", conn.AccessToken)

		var status struct {
			StatusCode string `json:"status_code"`
		}
		if err := p.do(ctx, http.MethodGet, containerID+"?"+q.Encode(), nil, &status); err != nil {
			return err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return nil
		case "ERROR", "EXPIRED":
			return NewPermanentError("CONTAINER_"+status.StatusCode, "media container could not be processed", 0, nil)
		}

		select {
		case <-ctx.Done():
			return NewTransientError("CONTAINER_WAIT_CANCELLED", ctx.Err().Error(), 0, ctx.Err())
		case <-time.After(p.cfg.VideoPollInterval):
		}
	}
	return NewTransientError("CONTAINER_NOT_READY", "media container still processing", 0, nil)
}

func (p *GraphSocialPublisher) publishFacebook(ctx context.Context, content *models.CampaignContent, conn *models.SocialConnection, scheduledAt *time.Time) (PublishResult, error) {
	form := url.Values{}
	edge := conn.AccountID + "/feed"

	if !utils.IsBlank(content.ImageURL) {
		mediaURL, err := p.media.ResolveURL(ctx, *content.ImageURL)
		if err != nil {
			return PublishResult{}, err
		}
		edge = conn.AccountID + "/photos"
		form.Set("url", mediaURL)
		if content.HasText() {
			form.Set("caption", strings.TrimSpace(content.Body))
		}
	} else {
		form.Set("message", strings.TrimSpace(content.Body))
		if !utils.IsBlank(content.LinkURL) {
			form.Set("link", *content.LinkURL)
		}
	}

	if scheduledAt != nil {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(scheduledAt.Unix(), 10))
	}

	var created struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := p.post(ctx, conn, edge, form, &created); err != nil {
		return PublishResult{}, err
	}

	postID := created.PostID
	if postID == "" {
		postID = created.ID
	}
	if postID == "" {
		return PublishResult{}, NewTransientError("EMPTY_POST_ID", "page publish returned no id", 0, nil)
	}

	result := PublishResult{PostID: postID}
	if scheduledAt != nil {
		at := *scheduledAt
		result.ScheduledAt = &at
	}
	return result, nil
}

func (p *GraphSocialPublisher) post(ctx context.Context, conn *models.SocialConnection, path string, form url.Values, out any) error {
	form.Set("access_token", conn.AccessToken)
	return p.do(ctx, http.MethodPost, path, form, out)
}

type graphErrorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func (p *GraphSocialPublisher) endpoint(path string) string {
	base := strings.TrimRight(p.cfg.BaseURL, "/")
	if p.cfg.Version != "" {
		base += "/" + strings.Trim(p.cfg.Version, "/")
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

func (p *GraphSocialPublisher) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, p.endpoint(path), body)
	if err != nil {
		return NewPermanentError("INVALID_REQUEST", err.Error(), 0, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return NewTransientError("GRAPH_REQUEST_FAILED", err.Error(), 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return NewTransientError("GRAPH_READ_FAILED", err.Error(), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return graphError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewTransientError("GRAPH_DECODE_FAILED", err.Error(), resp.StatusCode, err)
	}
	return nil
}

func graphError(status int, raw []byte) *DispatchError {
	var env graphErrorEnvelope
	_ = json.Unmarshal(raw, &env)

	message := env.Error.Message
	if message == "" {
		message = utils.TruncateString(string(raw), 300)
	}

	switch env.Error.Code {
	case 190:
		return NewPermanentError(ErrTokenExpired.Error(), message, status, ErrTokenExpired)
	case 4, 17, 32, 613:
		return NewTransientError("RATE_LIMITED", message, status, nil)
	}
	if env.Error.Code == 0 {
		return &DispatchError{Kind: classifyHTTPStatus(status), Code: "GRAPH_HTTP_ERROR", Message: message, StatusCode: status}
	}
	kind := ErrorKindPermanent
	if status >= 500 {
		kind = ErrorKindTransient
	}
	return &DispatchError{Kind: kind, Code: fmt.Sprintf("GRAPH_ERROR_%d", env.Error.Code), Message: message, StatusCode: status}
}
