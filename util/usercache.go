package util

import (
	"container/list"
	"os"
	"strconv"
	"sync"

	"github.com/ariebrainware/educe-api/model"
	"gorm.io/gorm"
)

// CachedAccount is the part of a user the auth middleware checks per request.
type CachedAccount struct {
	UserID   uint
	Email    string
	Role     model.Role
	Approved bool
}

// LRU cache for userID -> account
type accountLRU struct {
	mu       sync.Mutex
	ll       *list.List
	cache    map[uint]*list.Element
	capacity int
}

var accountCache *accountLRU

// InitAccountCache initializes the LRU cache with given capacity.
// If capacity <= 0, a default of 1000 is used.
func InitAccountCache(capacity int) {
	if capacity <= 0 {
		capacity = 1000
	}
	accountCache = &accountLRU{
		ll:       list.New(),
		cache:    make(map[uint]*list.Element),
		capacity: capacity,
	}
}

// InitAccountCacheFromEnv sizes the cache from ACCOUNT_CACHE_SIZE.
func InitAccountCacheFromEnv() {
	n, _ := strconv.Atoi(os.Getenv("ACCOUNT_CACHE_SIZE"))
	InitAccountCache(n)
}

func accountCacheGet(userID uint) (CachedAccount, bool) {
	if accountCache == nil {
		return CachedAccount{}, false
	}
	accountCache.mu.Lock()
	defer accountCache.mu.Unlock()
	if ele, ok := accountCache.cache[userID]; ok {
		accountCache.ll.MoveToFront(ele)
		return ele.Value.(CachedAccount), true
	}
	return CachedAccount{}, false
}

func accountCacheSet(a CachedAccount) {
	if accountCache == nil {
		return
	}
	accountCache.mu.Lock()
	defer accountCache.mu.Unlock()
	if ele, ok := accountCache.cache[a.UserID]; ok {
		accountCache.ll.MoveToFront(ele)
		ele.Value = a
		return
	}
	accountCache.cache[a.UserID] = accountCache.ll.PushFront(a)
	if accountCache.ll.Len() > accountCache.capacity {
		tail := accountCache.ll.Back()
		delete(accountCache.cache, tail.Value.(CachedAccount).UserID)
		accountCache.ll.Remove(tail)
	}
}

// ForgetAccount drops a user from the cache after it changed or was deleted.
func ForgetAccount(userID uint) {
	if accountCache == nil {
		return
	}
	accountCache.mu.Lock()
	defer accountCache.mu.Unlock()
	if ele, ok := accountCache.cache[userID]; ok {
		accountCache.ll.Remove(ele)
		delete(accountCache.cache, userID)
	}
}

// LookupAccount returns the account of userID using the cache, falling back
// to the database. The bool is false when the user does not exist.
func LookupAccount(db *gorm.DB, userID uint) (CachedAccount, bool, error) {
	if userID == 0 {
		return CachedAccount{}, false, nil
	}
	if a, ok := accountCacheGet(userID); ok {
		return a, true, nil
	}
	if db == nil {
		return CachedAccount{}, false, nil
	}
	var u model.User
	err := db.Select("id", "email", "role", "approved").Where("id = ?", userID).Take(&u).Error
	if err == gorm.ErrRecordNotFound {
		return CachedAccount{}, false, nil
	}
	if err != nil {
		return CachedAccount{}, false, err
	}
	a := CachedAccount{UserID: u.ID, Email: u.Email, Role: u.Role, Approved: u.Approved}
	accountCacheSet(a)
	return a, true, nil
}
