package calls

import (
	"context"
	"encoding/json"

	"go.uber.org/multierr"
)

// Cache layout. Everything here can be rebuilt from the store.
//
//	call:session:<id>        JSON shadow of the session
//	call:scope:<id>:*        auxiliary per-call entries (recording handle, ...)
//	call:user:<uid>:active   call id the user is currently on
//	call:user:<uid>:list     JSON list of the user's non-terminal sessions
const (
	sessionKeyPrefix = "call:session:"
	userKeyPrefix    = "call:user:"
)

func SessionKey(callID string) string { return sessionKeyPrefix + callID }

// ScopePrefix is the prefix of every auxiliary cache entry owned by a call.
// All of them are dropped when the call goes terminal.
func ScopePrefix(callID string) string { return "call:scope:" + callID + ":" }

func ActiveIndexKey(userID string) string { return userKeyPrefix + userID + ":active" }

func ActiveListKey(userID string) string { return userKeyPrefix + userID + ":list" }

// refreshCache mirrors a committed session into the cache. Non-terminal
// sessions are shadowed and indexed; terminal ones are purged.
// Per-user lists are always invalidated.
func (s *Service) refreshCache(ctx context.Context, sess CallSession) {
	if s.cache == nil {
		return
	}
	ctx, cancel := s.sideEffectContext(ctx)
	defer cancel()

	var err error
	if sess.Status.IsTerminal() {
		err = multierr.Append(err, s.cache.Delete(ctx, SessionKey(sess.CallID)))
		if _, derr := s.cache.DeleteByPrefix(ctx, ScopePrefix(sess.CallID)); derr != nil {
			err = multierr.Append(err, derr)
		}
		for _, uid := range sess.Participants() {
			_, derr := s.cache.DeleteIfEquals(ctx, ActiveIndexKey(uid), []byte(sess.CallID))
			err = multierr.Append(err, derr)
		}
	} else {
		err = multierr.Append(err, s.writeShadow(ctx, sess))
		for _, uid := range sess.Participants() {
			err = multierr.Append(err, s.cache.Set(ctx, ActiveIndexKey(uid), []byte(sess.CallID), s.opts.CacheTTL))
		}
	}

	lists := make([]string, 0, 2)
	for _, uid := range sess.Participants() {
		lists = append(lists, ActiveListKey(uid))
	}
	err = multierr.Append(err, s.cache.Delete(ctx, lists...))

	s.bestEffort(ctx, "cache", sess.CallID, err)
}

func (s *Service) writeShadow(ctx context.Context, sess CallSession) error {
	if s.cache == nil || sess.Status.IsTerminal() {
		return nil
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, SessionKey(sess.CallID), b, s.opts.CacheTTL)
}

func (s *Service) cachedSession(ctx context.Context, callID string) (CallSession, bool) {
	if s.cache == nil {
		return CallSession{}, false
	}
	b, ok, err := s.cache.Get(ctx, SessionKey(callID))
	if err != nil {
		s.log.Warn("session cache read failed", "call_id", callID, "err", err)
		return CallSession{}, false
	}
	if !ok {
		return CallSession{}, false
	}
	var sess CallSession
	if err := json.Unmarshal(b, &sess); err != nil {
		s.log.Warn("session cache entry corrupt", "call_id", callID, "err", err)
		return CallSession{}, false
	}
	return sess, true
}

func (s *Service) cachedActiveCallID(ctx context.Context, userID string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	b, ok, err := s.cache.Get(ctx, ActiveIndexKey(userID))
	if err != nil {
		s.log.Warn("participant index read failed", "user_id", userID, "err", err)
		return "", false
	}
	if !ok || len(b) == 0 {
		return "", false
	}
	return string(b), true
}

func (s *Service) indexParticipant(ctx context.Context, userID, callID string) {
	if s.cache == nil {
		return
	}
	s.bestEffort(ctx, "cache", callID, s.cache.Set(ctx, ActiveIndexKey(userID), []byte(callID), s.opts.CacheTTL))
}

// dropActiveIndex removes a stale index entry without clobbering one that
// was rewritten for a newer call in the meantime.
func (s *Service) dropActiveIndex(ctx context.Context, userID, callID string) {
	if s.cache == nil {
		return
	}
	_, err := s.cache.DeleteIfEquals(ctx, ActiveIndexKey(userID), []byte(callID))
	s.bestEffort(ctx, "cache", callID, err)
}

func (s *Service) cachedActiveList(ctx context.Context, userID string) ([]CallSession, bool) {
	if s.cache == nil {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, ActiveListKey(userID))
	if err != nil || !ok {
		return nil, false
	}
	var list []CallSession
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false
	}
	return list, true
}

func (s *Service) cacheActiveList(ctx context.Context, userID string, list []CallSession) {
	if s.cache == nil {
		return
	}
	if list == nil {
		list = []CallSession{}
	}
	b, err := json.Marshal(list)
	if err == nil {
		err = s.cache.Set(ctx, ActiveListKey(userID), b, s.opts.ActiveListTTL)
	}
	s.bestEffort(ctx, "cache", "", err)
}
