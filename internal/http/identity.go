package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tripsplit/internal/log"
)

// MemberIDHeader carries the caller's member ID. It is the only identity
// the API knows about.
const MemberIDHeader = "X-Member-ID"

type contextKey string

const memberIDKey contextKey = "member_id"

// MemberIdentity stores the X-Member-ID header, when present, in the
// request context.
func MemberIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(MemberIDHeader))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), memberIDKey, id)
		ctx = log.WithContextFields(ctx, log.FieldMemberID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMemberID extracts the caller's member ID from context.
func GetMemberID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(memberIDKey).(string)
	return id, ok && id != ""
}

// requireTripMember rejects callers that are not on the roster of the
// {tripID} in the route.
func (s *Server) requireTripMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID, ok := GetMemberID(r.Context())
		if !ok {
			UnauthorizedError("missing " + MemberIDHeader + " header").Write(w)
			return
		}
		tripID := chi.URLParam(r, "tripID")
		isMember, err := s.svc.IsMember(r.Context(), tripID, memberID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !isMember {
			ErrorResponse(http.StatusForbidden, "not_trip_member", "caller is not a member of this trip").Write(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(log.WithContextFields(r.Context(), log.FieldTripID, tripID)))
	})
}
