package contractabi

const erc20EventsJSON = `[
  {"type": "function", "name": "balanceOf", "inputs": [{"name": "owner", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
  {"type": "event", "name": "Transfer", "anonymous": false, "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}
  ]},
  {"type": "event", "name": "Approval", "anonymous": false, "inputs": [
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": true, "name": "spender", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}
  ]},
  {"type": "event", "name": "Transfer", "anonymous": false, "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"},
    {"indexed": false, "name": "memo", "type": "bytes"}
  ]}
]`
