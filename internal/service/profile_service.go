package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"otp-auth-service/internal/client"
	"otp-auth-service/internal/config"
	"otp-auth-service/internal/models"
	"otp-auth-service/internal/repository/scylla"
	"otp-auth-service/internal/util"
)

// Profile is the caller-facing view of a user: their own fields plus the
// phone numbers of everyone they referred.
type Profile struct {
	ID                  string   `json:"id"`
	PhoneNumber         string   `json:"phone_number"`
	FirstName           string   `json:"first_name"`
	LastName            string   `json:"last_name"`
	Email               string   `json:"email"`
	ReferralCode        string   `json:"referral_code"`
	IsVerified          bool     `json:"is_verified"`
	EnteredReferralCode []string `json:"entered_referral_code"`
}

// ProfileUpdateRequest is a partial update; nil fields are left untouched.
// UnenteredReferralCode, when present, redeems the referral before any
// field write and aborts the whole update on failure.
type ProfileUpdateRequest struct {
	FirstName             *string `json:"first_name,omitempty"`
	LastName              *string `json:"last_name,omitempty"`
	Email                 *string `json:"email,omitempty"`
	UnenteredReferralCode *string `json:"unentered_referral_code,omitempty"`
}

// ProfileService reads and updates user profiles and handles referral
// redemption.
type ProfileService struct {
	users  scylla.UserRepository
	events EventSink
	es     *client.ESClient
	config *config.Config
}

func NewProfileService(users scylla.UserRepository, events EventSink, es *client.ESClient, cfg *config.Config) *ProfileService {
	return &ProfileService{
		users:  users,
		events: events,
		es:     es,
		config: cfg,
	}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Accounts created before referral codes existed get one on first read.
	if user.ReferralCode == "" {
		if err := assignReferralCode(ctx, s.users, user); err != nil {
			return nil, err
		}
	}

	return s.buildProfile(ctx, user)
}

func (s *ProfileService) buildProfile(ctx context.Context, user *models.User) (*Profile, error) {
	referred, err := s.users.ListReferred(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	phones := make([]string, 0, len(referred))
	for _, u := range referred {
		phones = append(phones, u.PhoneNumber)
	}

	return &Profile{
		ID:                  user.ID,
		PhoneNumber:         user.PhoneNumber,
		FirstName:           user.FirstName,
		LastName:            user.LastName,
		Email:               user.Email,
		ReferralCode:        user.ReferralCode,
		IsVerified:          user.IsVerified,
		EnteredReferralCode: phones,
	}, nil
}

// Update applies a partial profile update. When the request carries a
// referral code, redemption runs first; if it fails nothing else is
// written.
func (s *ProfileService) Update(ctx context.Context, userID string, req *ProfileUpdateRequest) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if req.UnenteredReferralCode != nil && *req.UnenteredReferralCode != "" {
		if err := s.redeemReferral(ctx, user, *req.UnenteredReferralCode); err != nil {
			return nil, err
		}
	}

	changed := false
	if req.FirstName != nil {
		user.FirstName = util.SanitizeInput(*req.FirstName)
		changed = true
	}
	if req.LastName != nil {
		user.LastName = util.SanitizeInput(*req.LastName)
		changed = true
	}
	if req.Email != nil {
		email := util.SanitizeInput(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: malformed email", ErrValidation)
		}
		user.Email = email
		changed = true
	}

	if changed {
		if err := s.users.UpdateProfile(ctx, user); err != nil {
			return nil, err
		}
		s.events.Record(&models.AuthEvent{
			EventType:   models.EventProfileUpdated,
			UserID:      user.ID,
			PhoneNumber: user.PhoneNumber,
		})
		s.events.IndexProfile(user)
	}

	return s.buildProfile(ctx, user)
}

func (s *ProfileService) redeemReferral(ctx context.Context, user *models.User, code string) error {
	if user.ReferredByID != "" {
		return ErrAlreadyRedeemed
	}

	code = strings.ToUpper(util.SanitizeInput(code))
	referrer, err := s.users.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return ErrInvalidReferralCode
		}
		return err
	}
	if referrer.ID == user.ID {
		return ErrInvalidReferralCode
	}

	applied, err := s.users.SetReferredBy(ctx, user, referrer)
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent request won the conditional update.
		return ErrAlreadyRedeemed
	}

	s.events.Record(&models.AuthEvent{
		EventType:   models.EventReferralRedeemed,
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Detail:      referrer.ID,
	})

	return nil
}

// Search runs a prefix search over the profile index.
func (s *ProfileService) Search(ctx context.Context, query string) ([]map[string]interface{}, error) {
	query = util.SanitizeInput(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}

	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"type":   "phrase_prefix",
				"fields": []string{"phone_number", "first_name", "last_name", "email"},
			},
		},
	}

	resp, err := s.es.Search(ctx, s.config.Elasticsearch.ProfileIndex, esQuery)
	if err != nil {
		return nil, fmt.Errorf("profile search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("profile search failed: %s", resp.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source map[string]interface{} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		results = append(results, hit.Source)
	}

	return results, nil
}
