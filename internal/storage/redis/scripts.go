package redis

const (
	// replaceEventsScript atomically replaces a user's event ledger and
	// keeps the ledger index in sync. An empty replacement removes the
	// ledger and its index entry.
	replaceEventsScript = `
local events_key = KEYS[1]    -- warden:usage:events:{userID}
local index_key = KEYS[2]     -- warden:usage:users

local user_id = ARGV[1]

redis.call('DEL', events_key)

if #ARGV > 1 then
  for i = 2, #ARGV do
    redis.call('RPUSH', events_key, ARGV[i])
  end
  redis.call('SADD', index_key, user_id)
else
  redis.call('SREM', index_key, user_id)
end

return 'OK'
`
)
